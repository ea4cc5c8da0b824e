package session

import (
	"testing"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/constants"
	"github.com/eclipse-score/datarouter-go/internal/ring"
	"github.com/eclipse-score/datarouter-go/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	st := store.New(ring.New(4096))
	return New(1, "app", nil, st)
}

func TestStateBits(t *testing.T) {
	s := newTestSession()
	require.False(t, s.State().Has(Enqueued))

	s.SetBits(Enqueued)
	require.True(t, s.State().Has(Enqueued))

	s.SetBits(Running)
	require.True(t, s.State().Has(Enqueued|Running))

	s.ClearBits(Enqueued)
	require.False(t, s.State().Has(Enqueued))
	require.True(t, s.State().Has(Running))
}

func TestMarkClosedByPeer(t *testing.T) {
	s := newTestSession()
	s.MarkClosedByPeer()
	require.True(t, s.State().Has(ClosedByPeer))
}

func TestKeepaliveCadence(t *testing.T) {
	s := newTestSession()
	require.False(t, s.NeedsKeepaliveAcquire())

	for i := 0; i < constants.KTicksWithoutAcquireWhileNoWrites; i++ {
		s.RecordTickWithoutAcquire()
	}
	require.True(t, s.NeedsKeepaliveAcquire())

	s.ResetAcquireCadence(time.Now())
	require.False(t, s.NeedsKeepaliveAcquire())
}

func TestFileTransferBurstPacing(t *testing.T) {
	s := newTestSession()
	now := time.Now()

	for i := 0; i < constants.KBurstFileTransferControlCount; i++ {
		require.True(t, s.AllowFileTransferBurst(now))
	}
	require.False(t, s.AllowFileTransferBurst(now))

	later := now.Add(constants.FileTransferPaceQuantum)
	require.True(t, s.AllowFileTransferBurst(later))
}

func TestDataAcquiredLifecycle(t *testing.T) {
	s := newTestSession()
	_, ok := s.DataAcquired()
	require.False(t, ok)
	require.False(t, s.AcquireInFlight())

	s.MarkAcquireSent(time.Now())
	require.True(t, s.AcquireInFlight())

	s.SetDataAcquired(1)
	require.False(t, s.AcquireInFlight())
	half, ok := s.DataAcquired()
	require.True(t, ok)
	require.EqualValues(t, 1, half)

	// Peeking doesn't clear it; only ClearDataAcquired does.
	_, ok = s.DataAcquired()
	require.True(t, ok)

	s.ClearDataAcquired()
	_, ok = s.DataAcquired()
	require.False(t, ok)
}

func TestQuotaLatchesAndClearsOnPeriodRollover(t *testing.T) {
	s := newTestSession()
	now := time.Now()
	s.SetQuota(1) // 1 KB/s

	require.False(t, s.QuotaOverlimit())
	s.RecordBytesRouted(0, now) // opens the statistics period
	s.RecordBytesRouted(1<<20, now.Add(time.Second))
	require.True(t, s.QuotaOverlimit())

	s.RecordBytesRouted(0, now.Add(constants.QuotaStatPeriod+time.Second))
	require.False(t, s.QuotaOverlimit())
}
