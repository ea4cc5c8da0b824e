//go:build giouring

// Package uring, giouring build: batches datagrams through
// github.com/pawelgaczynski/giouring, submitting IORING_OP_SENDMSG SQEs
// and reaping CQEs in the same "prepare N, flush once" shape as
// queue/runner.go's processRequests/FlushSubmissions split, generalized
// from the teacher's ublk I/O commands to outbound UDP sends.
package uring

import (
	"fmt"
	"net"
	"sync"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

type pendingMsg struct {
	iov  unix.Iovec
	msg  unix.Msghdr
	name [unsafe.Sizeof(unix.RawSockaddrInet6{})]byte
	buf  []byte
}

type giouringSink struct {
	ring *giouring.Ring
	fd   int32

	mu      sync.Mutex
	staged  []*pendingMsg
}

func newSink(config Config) (Sink, error) {
	ring, err := giouring.CreateRing(uint32(maxBatch) * 4)
	if err != nil {
		return nil, fmt.Errorf("giouring.CreateRing: %w", err)
	}
	return &giouringSink{ring: ring, fd: config.FD}, nil
}

func (s *giouringSink) Close() error {
	s.ring.QueueExit()
	return nil
}

func (s *giouringSink) PrepareSend(dst *net.UDPAddr, payload []byte, userData uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.staged) >= maxBatch {
		return ErrRingFull
	}

	pm := &pendingMsg{buf: append([]byte(nil), payload...)}
	if err := fillSockaddr(pm.name[:], dst); err != nil {
		return err
	}
	pm.iov = unix.Iovec{Base: &pm.buf[0]}
	pm.iov.SetLen(len(pm.buf))
	pm.msg.Name = (*byte)(unsafe.Pointer(&pm.name[0]))
	pm.msg.Namelen = uint32(len(pm.name))
	pm.msg.Iov = &pm.iov
	pm.msg.Iovlen = 1

	sqe := s.ring.GetSQE()
	if sqe == nil {
		return ErrRingFull
	}
	sqe.PrepSendMsg(int(s.fd), &pm.msg, 0)
	sqe.UserData = userData

	s.staged = append(s.staged, pm)
	return nil
}

func (s *giouringSink) FlushSubmissions() (uint32, error) {
	s.mu.Lock()
	n := len(s.staged)
	s.staged = nil
	s.mu.Unlock()

	if n == 0 {
		return 0, nil
	}
	submitted, err := s.ring.Submit()
	if err != nil {
		return 0, fmt.Errorf("giouring submit: %w", err)
	}
	return uint32(submitted), nil
}

func (s *giouringSink) WaitForCompletions(timeoutMs int) ([]Result, error) {
	var results []Result
	cqe, err := s.ring.WaitCQE()
	if err != nil {
		return nil, fmt.Errorf("giouring wait cqe: %w", err)
	}
	results = append(results, &resultErr{userData: cqe.UserData, value: cqe.Res})
	s.ring.CQESeen(cqe)

	for {
		next, err := s.ring.PeekCQE()
		if err != nil || next == nil {
			break
		}
		results = append(results, &resultErr{userData: next.UserData, value: next.Res})
		s.ring.CQESeen(next)
	}
	return results, nil
}

// fillSockaddr encodes dst into buf as a sockaddr_in or sockaddr_in6,
// matching the unsafe-pointer-into-a-byte-buffer idiom the teacher uses
// for kernel-facing structs (internal/uapi marshal.go).
func fillSockaddr(buf []byte, dst *net.UDPAddr) error {
	if ip4 := dst.IP.To4(); ip4 != nil {
		sa := (*unix.RawSockaddrInet4)(unsafe.Pointer(&buf[0]))
		sa.Family = unix.AF_INET
		sa.Port = htons(uint16(dst.Port))
		copy(sa.Addr[:], ip4)
		return nil
	}
	ip6 := dst.IP.To16()
	if ip6 == nil {
		return fmt.Errorf("invalid UDP address %v", dst)
	}
	sa := (*unix.RawSockaddrInet6)(unsafe.Pointer(&buf[0]))
	sa.Family = unix.AF_INET6
	sa.Port = htons(uint16(dst.Port))
	copy(sa.Addr[:], ip6)
	return nil
}

func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}
