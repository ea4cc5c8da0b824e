package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/session"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	mu      sync.Mutex
	ticks   int32
	closed  []int32
	onTick  func(sess *session.Session)
}

func (f *fakeHandler) Tick(sess *session.Session) error {
	atomic.AddInt32(&f.ticks, 1)
	if f.onTick != nil {
		f.onTick(sess)
	}
	return nil
}

func (f *fakeHandler) OnSessionClosed(sess *session.Session) {
	f.mu.Lock()
	f.closed = append(f.closed, sess.PID)
	f.mu.Unlock()
}

func TestEnqueueTicksSession(t *testing.T) {
	h := &fakeHandler{}
	s := New(h, nil, time.Millisecond)

	sess := session.New(1, "app", nil, nil)
	s.Register(sess)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	s.Enqueue(sess)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.ticks) >= 1
	}, time.Second, time.Millisecond)
}

func TestRequestCloseRemovesSession(t *testing.T) {
	h := &fakeHandler{}
	s := New(h, nil, time.Millisecond)

	sess := session.New(2, "app", nil, nil)
	s.Register(sess)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	s.RequestClose(sess)
	s.WaitDrained(sess)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Contains(t, h.closed, int32(2))
}

func TestReenqueueDuringRunIsHonored(t *testing.T) {
	h := &fakeHandler{}
	var reenqueued sync.Once
	var sched *Scheduler
	h.onTick = func(sess *session.Session) {
		reenqueued.Do(func() {
			go sched.Enqueue(sess)
		})
	}
	sched = New(h, nil, time.Millisecond)

	sess := session.New(3, "app", nil, nil)
	sched.Register(sess)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	defer cancel()

	sched.Enqueue(sess)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.ticks) >= 2
	}, time.Second, time.Millisecond)
}
