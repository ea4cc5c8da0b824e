// Package transport provides an in-memory uring.Sink for tests that
// exercise internal/channel and internal/router without binding real
// UDP sockets.
//
// Grounded on the teacher's backend/mem.go Memory backend: sharded
// locking (one mutex per bucket) to let concurrent callers proceed
// without serializing on a single lock, here sharding by destination
// address instead of by byte offset.
package transport

import (
	"net"
	"sync"

	"github.com/eclipse-score/datarouter-go/internal/uring"
)

// shardCount mirrors the teacher's ShardSize-derived shard count,
// fixed here since a mock sink's working set (distinct destinations in
// one test) is always small.
const shardCount = 16

// Datagram is one captured send.
type Datagram struct {
	Dest    string
	Payload []byte
}

// Memory is a uring.Sink that records every send instead of putting it
// on the wire, for deterministic assertions in channel/router tests.
type Memory struct {
	shards [shardCount]struct {
		mu  sync.Mutex
		out []Datagram
	}

	mu      sync.Mutex
	staged  []stagedSend
	closed  bool
	onFlush func(Datagram)
}

type stagedSend struct {
	dst      string
	payload  []byte
	userData uint64
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) shardFor(dest string) int {
	var h int
	for i := 0; i < len(dest); i++ {
		h = h*31 + int(dest[i])
	}
	if h < 0 {
		h = -h
	}
	return h % shardCount
}

// Close implements uring.Sink.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// PrepareSend implements uring.Sink, staging a send for the next
// FlushSubmissions.
func (m *Memory) PrepareSend(dst *net.UDPAddr, payload []byte, userData uint64) error {
	if len(payload) == 0 {
		payload = []byte{}
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)

	m.mu.Lock()
	if len(m.staged) >= 4 {
		m.mu.Unlock()
		return uring.ErrRingFull
	}
	m.staged = append(m.staged, stagedSend{dst: dst.String(), payload: cp, userData: userData})
	m.mu.Unlock()
	return nil
}

// FlushSubmissions implements uring.Sink, moving every staged send into
// its destination's shard.
func (m *Memory) FlushSubmissions() (uint32, error) {
	m.mu.Lock()
	batch := m.staged
	m.staged = nil
	m.mu.Unlock()

	for _, s := range batch {
		shard := &m.shards[m.shardFor(s.dst)]
		shard.mu.Lock()
		shard.out = append(shard.out, Datagram{Dest: s.dst, Payload: s.payload})
		shard.mu.Unlock()
		if m.onFlush != nil {
			m.onFlush(Datagram{Dest: s.dst, Payload: s.payload})
		}
	}
	return uint32(len(batch)), nil
}

// WaitForCompletions implements uring.Sink. Sends complete
// synchronously within FlushSubmissions and no per-send results are
// kept, so this returns no results and a nil error, and never blocks.
func (m *Memory) WaitForCompletions(timeoutMs int) ([]uring.Result, error) {
	return nil, nil
}

// Sent returns every datagram recorded so far, across all destinations,
// in no particular cross-shard order.
func (m *Memory) Sent() []Datagram {
	var all []Datagram
	for i := range m.shards {
		shard := &m.shards[i]
		shard.mu.Lock()
		all = append(all, shard.out...)
		shard.mu.Unlock()
	}
	return all
}

// SentTo returns every datagram recorded for a specific destination.
func (m *Memory) SentTo(dest string) []Datagram {
	shard := &m.shards[m.shardFor(dest)]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	var out []Datagram
	for _, d := range shard.out {
		if d.Dest == dest {
			out = append(out, d)
		}
	}
	return out
}

var _ uring.Sink = (*Memory)(nil)
