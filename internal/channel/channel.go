// Package channel implements spec.md §4.5's routing destinations: a
// named, channelmask-addressed UDP sink that flushes after every record
// when verbose and otherwise once constants.KVectorCount datagrams are
// staged. Grounded on the teacher's internal/queue
// Runner (one goroutine's worth of per-destination state plus a
// metrics.Channel counter set) and on internal/queue/pool.go's
// fixed-size staging-buffer idiom, applied here as the
// constants.KVectorCount-deep batch a Channel stages into an
// internal/uring.Sink before flushing.
//
// Bandwidth quota is deliberately not a Channel concern: spec.md §3/§4.5
// specify it as a per-source (per-session/producer) property, enforced
// by internal/session.Session.RecordBytesRouted and checked by
// internal/router before a record ever reaches a Channel.
package channel

import (
	"net"
	"sync"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/constants"
	"github.com/eclipse-score/datarouter-go/internal/errkind"
	"github.com/eclipse-score/datarouter-go/internal/metrics"
	"github.com/eclipse-score/datarouter-go/internal/uring"
)

// Mask identifies the set of channels a record should be routed to. A
// record's channelmask (spec.md §3) is the bitwise OR of the Mask
// values of every channel it targets.
type Mask uint32

// Channel is one routing destination: a UDP address and a batch of
// staged outbound datagrams.
type Channel struct {
	Name    string
	Mask    Mask
	Dest    *net.UDPAddr
	Verbose bool

	sink    uring.Sink
	metrics *metrics.Channel

	mu           sync.Mutex
	staged       int
	nextUserData uint64
}

// New creates a Channel that sends through sink.
func New(name string, mask Mask, dest *net.UDPAddr, verbose bool, sink uring.Sink, now time.Time) *Channel {
	return &Channel{
		Name:    name,
		Mask:    mask,
		Dest:    dest,
		Verbose: verbose,
		sink:    sink,
		metrics: metrics.NewChannel(now),
	}
}

// Metrics exposes the channel's statistics.
func (c *Channel) Metrics() *metrics.Channel { return c.metrics }

// Route stages payload for send, flushing immediately once
// constants.KVectorCount datagrams are staged (spec.md §4.5 "batching
// under MTU with kVectorCount staging buffers"). Quota enforcement has
// already happened by the time a record reaches here (internal/router);
// Route only ever rejects on oversize payloads or transport failure.
func (c *Channel) Route(payload []byte, now time.Time) error {
	if len(payload) > constants.UDPMaxPayload {
		return errkind.New("Channel.Route", errkind.InvalidSize, "payload exceeds UDP MTU budget")
	}

	c.mu.Lock()
	c.nextUserData++
	userData := c.nextUserData
	c.mu.Unlock()

	start := time.Now()
	if err := c.sink.PrepareSend(c.Dest, payload, userData); err == uring.ErrRingFull {
		if _, ferr := c.sink.FlushSubmissions(); ferr != nil {
			c.metrics.RecordSend(0, uint64(time.Since(start)), false)
			return errkind.Wrap("Channel.Route", errkind.SendFailure, ferr)
		}
		if err := c.sink.PrepareSend(c.Dest, payload, userData); err != nil {
			c.metrics.RecordSend(0, uint64(time.Since(start)), false)
			return errkind.Wrap("Channel.Route", errkind.SendFailure, err)
		}
	} else if err != nil {
		c.metrics.RecordSend(0, uint64(time.Since(start)), false)
		return errkind.Wrap("Channel.Route", errkind.SendFailure, err)
	}

	c.mu.Lock()
	c.staged++
	full := c.staged >= constants.KVectorCount
	if full {
		c.staged = 0
	}
	c.mu.Unlock()

	if full || c.Verbose {
		if err := c.Flush(); err != nil {
			return err
		}
	}

	c.metrics.RecordSend(uint64(len(payload)), uint64(time.Since(start)), true)
	return nil
}

// Flush submits whatever is currently staged. Route calls it after
// every record on a verbose channel and once constants.KVectorCount
// datagrams are staged; nothing else in the daemon calls it, so a
// non-verbose channel's partial batch stays staged until later records
// complete it.
func (c *Channel) Flush() error {
	if _, err := c.sink.FlushSubmissions(); err != nil {
		return errkind.Wrap("Channel.Flush", errkind.SendFailure, err)
	}
	return nil
}

// Matches reports whether this channel is one of the destinations
// named by a record's channelmask.
func (c *Channel) Matches(recordMask Mask) bool {
	return c.Mask&recordMask != 0
}
