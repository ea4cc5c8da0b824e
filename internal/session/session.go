// Package session models one producer's connection lifecycle: its
// identity, its ring-backed store, and the state bits the scheduler
// uses to decide whether the session is queued for work, mid-tick, or
// winding down (spec.md §4.4). Grounded on the teacher's
// internal/queue Runner.tagStates/tagMutexes pair (a parallel array of
// small state enums each guarded by its own mutex), generalized from
// per-tag I/O state to per-session lifecycle state.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/constants"
	"github.com/eclipse-score/datarouter-go/internal/store"
)

// State is a bitmask of a session's current lifecycle flags.
type State uint32

const (
	// Enqueued means the session sits in the scheduler's FIFO work
	// queue awaiting a tick.
	Enqueued State = 1 << iota
	// Running means the scheduler's single worker is currently
	// executing a tick for this session.
	Running
	// ToDelete marks the session for removal once its current tick (if
	// any) completes.
	ToDelete
	// ClosedByPeer records that the producer's end of the control
	// channel disconnected; the session enters detach-drain instead of
	// being removed immediately, so buffered records aren't lost.
	ClosedByPeer
	// ToForceFinish requests an immediate detach-drain regardless of
	// whether the peer has actually closed, used by administrative
	// shutdown.
	ToForceFinish
)

// Has reports whether all bits in mask are set.
func (s State) Has(mask State) bool { return s&mask == mask }

// Session is one producer's daemon-side connection state.
type Session struct {
	PID   int32
	AppID string

	PeerAddr *net.UnixAddr
	Store    *store.Store

	mu    sync.Mutex
	state State

	// ticksWithoutAcquire counts scheduler ticks that found no
	// AcquireRequest in flight since the counter was last reset (by
	// MarkAcquireSent or ResetAcquireCadence), driving the keepalive
	// cadence of constants.KTicksWithoutAcquireWhileNoWrites (spec.md's
	// supplemented keepalive feature, see SPEC_FULL.md). Writes to the
	// producer's ring are not observed by it.
	ticksWithoutAcquire int
	lastAcquireSentAt   time.Time

	// fileTransferBurst paces bulk file-transfer control messages per
	// constants.KBurstFileTransferControlCount /
	// constants.FileTransferPaceQuantum.
	fileTransferBurst   int
	fileTransferBurstAt time.Time

	// acquireInFlight is true from the moment the daemon sends this
	// session's producer an AcquireRequest until its AcquireResponse
	// arrives, so the scheduler never issues a second request on top of
	// one still outstanding (spec.md §4.3/§4.4).
	acquireInFlight bool

	// dataAcquiredHalf is the retired ring half id reported by the most
	// recent AcquireResponse, awaiting drain once the scheduler observes
	// it fully released by writers. hasDataAcquired is false once the
	// drain has been finalized.
	dataAcquiredHalf uint32
	hasDataAcquired  bool

	// Quota tracks this session's producer-side bandwidth cap,
	// independent of which channel(s) its records are routed to
	// (spec.md §3 "stats block" / §4.5 "Quota"). quotaKBps == 0 disables
	// enforcement.
	quotaKBps       uint64
	statPeriodStart time.Time
	statPeriodBytes uint64
	quotaOverlimit  bool
}

// New creates a Session for a newly connected producer.
func New(pid int32, appID string, peer *net.UnixAddr, st *store.Store) *Session {
	return &Session{PID: pid, AppID: appID, PeerAddr: peer, Store: st}
}

// State returns the current state bits.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetBits ORs mask into the state.
func (s *Session) SetBits(mask State) {
	s.mu.Lock()
	s.state |= mask
	s.mu.Unlock()
}

// ClearBits ANDs out mask from the state.
func (s *Session) ClearBits(mask State) {
	s.mu.Lock()
	s.state &^= mask
	s.mu.Unlock()
}

// MarkClosedByPeer records peer disconnection and requests detach-drain.
func (s *Session) MarkClosedByPeer() {
	s.SetBits(ClosedByPeer)
}

// NeedsKeepaliveAcquire reports whether ticksWithoutAcquire has reached
// the threshold at which the daemon sends the producer an
// AcquireRequest, so a producer's buffered records get drained
// periodically.
func (s *Session) NeedsKeepaliveAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticksWithoutAcquire >= constants.KTicksWithoutAcquireWhileNoWrites
}

// RecordTickWithoutAcquire increments the no-write tick counter.
func (s *Session) RecordTickWithoutAcquire() {
	s.mu.Lock()
	s.ticksWithoutAcquire++
	s.mu.Unlock()
}

// ResetAcquireCadence resets the no-write tick counter. The daemon calls
// it after draining a retired half; MarkAcquireSent resets the same
// counter when an AcquireRequest is sent.
func (s *Session) ResetAcquireCadence(now time.Time) {
	s.mu.Lock()
	s.ticksWithoutAcquire = 0
	s.lastAcquireSentAt = now
	s.mu.Unlock()
}

// AllowFileTransferBurst implements the burst pacing described in
// SPEC_FULL.md's supplemented file-transfer feature: up to
// constants.KBurstFileTransferControlCount control messages may be sent
// back-to-back, then the session must wait out
// constants.FileTransferPaceQuantum before the next burst starts.
func (s *Session) AllowFileTransferBurst(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileTransferBurst == 0 || now.Sub(s.fileTransferBurstAt) >= constants.FileTransferPaceQuantum {
		s.fileTransferBurst = 0
		s.fileTransferBurstAt = now
	}
	if s.fileTransferBurst >= constants.KBurstFileTransferControlCount {
		return false
	}
	s.fileTransferBurst++
	return true
}

// AcquireInFlight reports whether an AcquireRequest was sent to this
// session's producer and no AcquireResponse has been observed yet.
func (s *Session) AcquireInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquireInFlight
}

// MarkAcquireSent records that an AcquireRequest was just sent and
// resets the keepalive cadence, called only from the scheduler's single
// worker (spec.md §5).
func (s *Session) MarkAcquireSent(now time.Time) {
	s.mu.Lock()
	s.acquireInFlight = true
	s.ticksWithoutAcquire = 0
	s.lastAcquireSentAt = now
	s.mu.Unlock()
}

// SetDataAcquired records the retired half id carried by an
// AcquireResponse and clears acquireInFlight. The half isn't
// necessarily drainable yet: the scheduler still has to observe
// IsBlockReleasedByWriters before reading it.
func (s *Session) SetDataAcquired(halfID uint32) {
	s.mu.Lock()
	s.dataAcquiredHalf = halfID
	s.hasDataAcquired = true
	s.acquireInFlight = false
	s.mu.Unlock()
}

// DataAcquired peeks the pending acquired half, if any, without
// clearing it.
func (s *Session) DataAcquired() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataAcquiredHalf, s.hasDataAcquired
}

// ClearDataAcquired clears the pending acquired half once its drain has
// been finalized.
func (s *Session) ClearDataAcquired() {
	s.mu.Lock()
	s.hasDataAcquired = false
	s.mu.Unlock()
}

// SetQuota configures the session's enforced bandwidth cap in KB/s;
// zero disables enforcement.
func (s *Session) SetQuota(kbps uint64) {
	s.mu.Lock()
	s.quotaKBps = kbps
	s.mu.Unlock()
}

// RecordBytesRouted accounts for n bytes drained from this session's
// ring during the current statistics period and, while quota
// enforcement is enabled and not already latched, re-evaluates
// spec.md §4.5's rate = bytes*1000/1024/elapsed_ms formula against it.
// The first call opens the statistics period at its own now, so that
// call's elapsed_ms is zero and it never latches. A statistics period with elapsed_ms == 0 skips the check for this
// call instead of dividing by zero: spec.md §9 notes the original
// daemon has this same gap, and SPEC_FULL.md's decision is to preserve
// it rather than silently fix it. The period itself rolls over every
// constants.QuotaStatPeriod, clearing the latch the same way the
// original daemon's periodic stats print does.
func (s *Session) RecordBytesRouted(n uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statPeriodStart.IsZero() {
		s.statPeriodStart = now
	}
	s.statPeriodBytes += n

	if !s.quotaOverlimit && s.quotaKBps > 0 {
		if elapsedMs := uint64(now.Sub(s.statPeriodStart).Milliseconds()); elapsedMs > 0 {
			rateKBps := s.statPeriodBytes * 1000 / 1024 / elapsedMs
			if rateKBps > s.quotaKBps {
				s.quotaOverlimit = true
			}
		}
	}

	if now.Sub(s.statPeriodStart) >= constants.QuotaStatPeriod {
		s.statPeriodStart = now
		s.statPeriodBytes = 0
		s.quotaOverlimit = false
	}
}

// QuotaOverlimit reports whether this session's producer is currently
// latched over its configured quota. Entries are still consumed from
// the ring while latched, just not fanned out to channels (spec.md
// §4.5).
func (s *Session) QuotaOverlimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotaOverlimit
}
