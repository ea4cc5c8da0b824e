// Package metrics tracks per-channel routing statistics: bytes and
// records routed, drops from quota enforcement, and send-latency
// histogram buckets. Grounded directly on the root package's
// metrics.go (atomic counters plus a cumulative logarithmic-bucket
// latency histogram and a Snapshot method), generalized from
// block-device read/write/discard/flush counters to route/drop/quota
// counters (spec.md §4.5/§8).
package metrics

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets are cumulative logarithmic-spacing boundaries in
// nanoseconds, covering 1us to 1s of UDP send latency.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
}

const numLatencyBuckets = 7

// Channel tracks one channel's routing statistics.
type Channel struct {
	RecordsRouted   atomic.Uint64
	BytesRouted     atomic.Uint64
	RecordsDropped  atomic.Uint64 // quota overlimit drops
	SendErrors      atomic.Uint64

	totalLatencyNs atomic.Uint64
	sendCount      atomic.Uint64
	latencyBuckets [numLatencyBuckets]atomic.Uint64

	startTime atomic.Int64
}

// NewChannel creates a Channel metrics instance stamped with the
// current time.
func NewChannel(now time.Time) *Channel {
	c := &Channel{}
	c.startTime.Store(now.UnixNano())
	return c
}

// RecordSend records one successful or failed datagram send.
func (c *Channel) RecordSend(bytes uint64, latencyNs uint64, success bool) {
	if success {
		c.RecordsRouted.Add(1)
		c.BytesRouted.Add(bytes)
	} else {
		c.SendErrors.Add(1)
	}
	c.totalLatencyNs.Add(latencyNs)
	c.sendCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			c.latencyBuckets[i].Add(1)
		}
	}
}

// RecordDrop records one record dropped by quota enforcement.
func (c *Channel) RecordDrop() {
	c.RecordsDropped.Add(1)
}

// ChannelSnapshot is a point-in-time copy of a Channel's counters.
type ChannelSnapshot struct {
	RecordsRouted    uint64
	BytesRouted      uint64
	RecordsDropped   uint64
	SendErrors       uint64
	AvgLatencyNs     uint64
	LatencyHistogram [numLatencyBuckets]uint64
	UptimeNs         uint64
}

// Snapshot returns a point-in-time copy of the channel's statistics.
func (c *Channel) Snapshot(now time.Time) ChannelSnapshot {
	snap := ChannelSnapshot{
		RecordsRouted:  c.RecordsRouted.Load(),
		BytesRouted:    c.BytesRouted.Load(),
		RecordsDropped: c.RecordsDropped.Load(),
		SendErrors:     c.SendErrors.Load(),
		UptimeNs:       uint64(now.UnixNano() - c.startTime.Load()),
	}
	if n := c.sendCount.Load(); n > 0 {
		snap.AvgLatencyNs = c.totalLatencyNs.Load() / n
	}
	for i := range c.latencyBuckets {
		snap.LatencyHistogram[i] = c.latencyBuckets[i].Load()
	}
	return snap
}
