//go:build !giouring

package uring

import (
	"net"
	"sync"
)

// stubSink implements Sink without io_uring: PrepareSend stages into a
// small slice and FlushSubmissions issues one WriteMsgUDP per staged
// datagram synchronously, returning results immediately. Used on
// non-Linux builds and whenever the giouring build tag is absent,
// mirroring the teacher's own stubLoop fallback for environments
// without a working ublk io_uring path.
type stubSink struct {
	conn *net.UDPConn

	mu      sync.Mutex
	pending []pendingSend
	done    []Result
}

type pendingSend struct {
	dst      *net.UDPAddr
	payload  []byte
	userData uint64
}

func newSink(config Config) (Sink, error) {
	return &stubSink{conn: config.Conn}, nil
}

func (s *stubSink) Close() error { return nil }

func (s *stubSink) PrepareSend(dst *net.UDPAddr, payload []byte, userData uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= maxBatch {
		return ErrRingFull
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	s.pending = append(s.pending, pendingSend{dst: dst, payload: buf, userData: userData})
	return nil
}

func (s *stubSink) FlushSubmissions() (uint32, error) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, p := range batch {
		_, _, err := s.conn.WriteMsgUDP(p.payload, nil, p.dst)
		s.mu.Lock()
		s.done = append(s.done, &resultErr{userData: p.userData, value: okOrErrVal(err), err: err})
		s.mu.Unlock()
	}
	return uint32(len(batch)), nil
}

func (s *stubSink) WaitForCompletions(timeoutMs int) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.done
	s.done = nil
	return out, nil
}

func okOrErrVal(err error) int32 {
	if err != nil {
		return -1
	}
	return 0
}
