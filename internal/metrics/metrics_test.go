package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelRecordSendAndSnapshot(t *testing.T) {
	now := time.Now()
	c := NewChannel(now)

	c.RecordSend(100, 5_000, true)
	c.RecordSend(50, 2_000_000, true)
	c.RecordSend(0, 1_000, false)
	c.RecordDrop()

	snap := c.Snapshot(now.Add(time.Second))
	require.Equal(t, uint64(2), snap.RecordsRouted)
	require.Equal(t, uint64(150), snap.BytesRouted)
	require.Equal(t, uint64(1), snap.SendErrors)
	require.Equal(t, uint64(1), snap.RecordsDropped)
	require.Greater(t, snap.AvgLatencyNs, uint64(0))
}
