// Package scheduler implements spec.md §4.4's per-client session
// scheduler: a single cooperative worker goroutine draining a FIFO
// queue of sessions, each tick handled by a caller-supplied Handler.
// Grounded on the teacher's internal/queue Runner.ioLoop/processRequests
// pair — a single pinned goroutine alternating "wait for work" and
// "process what's ready" — generalized from io_uring completion
// batches to an explicit FIFO of session pointers, since this package
// has no kernel completion queue to poll. The two-condition-variable
// shape (one for "queue non-empty", one for "drain completed") follows
// jangala-dev-devicecode-go's registry.go reconnect/close bookkeeping
// idiom of signalling distinct conditions for distinct lifecycle
// events rather than a single catch-all broadcast.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/logging"
	"github.com/eclipse-score/datarouter-go/internal/session"
)

// Handler processes one tick of work for a session. The daemon's
// implementation is datarouter.Daemon (daemon.go), which calls into
// internal/router for parsing, quota checks and UDP fan-out; this
// package only knows how to schedule calls to it, mirroring the
// teacher's Backend interface split between queue/runner.go (generic
// I/O loop) and backend/mem.go (concrete semantics).
type Handler interface {
	Tick(sess *session.Session) error
	// OnSessionClosed is invoked once a session's final tick has run,
	// just before the session is removed from the scheduler, so
	// WaitDrained returns only after it has completed.
	OnSessionClosed(sess *session.Session)
}

// Stats are cumulative scheduler counters.
type Stats struct {
	TicksRun             atomic.Uint64
	SessionsRemoved       atomic.Uint64
	FastRescheduleHints   atomic.Uint64
}

// Scheduler runs one cooperative worker goroutine over a FIFO of
// sessions.
type Scheduler struct {
	handler Handler
	logger  *logging.Logger

	mu    sync.Mutex
	queue []*session.Session
	known map[int32]*session.Session

	workAvailable *sync.Cond
	drained       *sync.Cond

	idleTick time.Duration

	stats Stats
}

// New creates a Scheduler that calls handler.Tick once per queued
// session per worker iteration.
func New(handler Handler, logger *logging.Logger, idleTick time.Duration) *Scheduler {
	s := &Scheduler{
		handler:  handler,
		logger:   logger,
		known:    make(map[int32]*session.Session),
		idleTick: idleTick,
	}
	s.workAvailable = sync.NewCond(&s.mu)
	s.drained = sync.NewCond(&s.mu)
	return s
}

// Register adds a new session under scheduler management without
// queuing it for an immediate tick.
func (s *Scheduler) Register(sess *session.Session) {
	s.mu.Lock()
	s.known[sess.PID] = sess
	s.mu.Unlock()
}

// Enqueue appends sess to the FIFO if it isn't already enqueued, and
// wakes the worker. Re-enqueuing a session that is currently Running is
// safe and common: the producer's AcquireResponse may arrive mid-tick,
// and the scheduler honors it on the session's next turn rather than
// losing it.
func (s *Scheduler) Enqueue(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.State().Has(session.Enqueued) {
		return
	}
	sess.SetBits(session.Enqueued)
	s.queue = append(s.queue, sess)
	s.workAvailable.Signal()
}

// EnqueueFront behaves like Enqueue but jumps sess to the head of the
// FIFO instead of the tail, used by the spec.md §4.4 Reconnect path to
// force-finish a prior session at the same identity ahead of whatever
// else is already queued.
func (s *Scheduler) EnqueueFront(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.State().Has(session.Enqueued) {
		for i, q := range s.queue {
			if q == sess {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
	}
	sess.SetBits(session.Enqueued)
	s.queue = append([]*session.Session{sess}, s.queue...)
	s.workAvailable.Signal()
}

// RequestClose marks sess for removal. If the session is idle (neither
// enqueued nor running) it is enqueued so the worker processes the
// close promptly instead of waiting for unrelated traffic.
func (s *Scheduler) RequestClose(sess *session.Session) {
	sess.SetBits(session.ToDelete)
	s.Enqueue(sess)
}

// Stats returns the scheduler's running counters.
func (s *Scheduler) Stats() *Stats { return &s.stats }

// WaitDrained blocks until sess is no longer tracked by the scheduler
// (i.e. its detach-drain completed and it was removed).
func (s *Scheduler) WaitDrained(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if _, ok := s.known[sess.PID]; !ok {
			return
		}
		s.drained.Wait()
	}
}

// Run executes the worker loop until ctx is cancelled. It is intended
// to be run in its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		close(stop)
		s.workAvailable.Broadcast()
		s.mu.Unlock()
	}()

	for {
		sess, ok := s.dequeue(stop)
		if !ok {
			return
		}
		s.runOne(sess)
	}
}

func (s *Scheduler) dequeue(stop <-chan struct{}) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) == 0 {
		select {
		case <-stop:
			return nil, false
		default:
		}
		s.workAvailable.Wait()
		select {
		case <-stop:
			return nil, false
		default:
		}
	}

	sess := s.queue[0]
	s.queue = s.queue[1:]
	sess.ClearBits(session.Enqueued)
	sess.SetBits(session.Running)
	return sess, true
}

func (s *Scheduler) runOne(sess *session.Session) {
	err := s.handler.Tick(sess)
	s.stats.TicksRun.Add(1)
	if err != nil && s.logger != nil {
		s.logger.WithSession(sess.PID).WithError(err).Error("session tick failed")
	}

	sess.ClearBits(session.Running)

	state := sess.State()
	if state.Has(session.ToDelete) || (state.Has(session.ClosedByPeer) && !s.hasPendingWork(sess)) {
		s.remove(sess)
		return
	}
	if state.Has(session.ToForceFinish) {
		s.remove(sess)
		return
	}
}

// hasPendingWork lets the handler veto an immediate removal when a
// peer-closed session still has unread buffered bytes to detach-drain.
// Handlers that have nothing further to drain simply never re-enqueue,
// so by the time runOne observes ClosedByPeer with no re-enqueue, it's
// safe to remove.
func (s *Scheduler) hasPendingWork(sess *session.Session) bool {
	return sess.State().Has(session.Enqueued)
}

func (s *Scheduler) remove(sess *session.Session) {
	s.handler.OnSessionClosed(sess)

	s.mu.Lock()
	delete(s.known, sess.PID)
	s.drained.Broadcast()
	s.mu.Unlock()

	s.stats.SessionsRemoved.Add(1)
}

// NoteFastRescheduleHint records that a session's producer signaled it
// has more data ready sooner than the idle tick would naturally poll
// for (spec.md §9 open question). The scheduler deliberately does not
// use this counter to shorten its own wake cadence: SPEC_FULL.md's
// resolution of that open question preserves the possible-bug behavior
// rather than silently fixing it, so the hint is surfaced for
// diagnostics only.
func (s *Scheduler) NoteFastRescheduleHint() {
	s.stats.FastRescheduleHints.Add(1)
}
