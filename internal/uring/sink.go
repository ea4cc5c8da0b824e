// Package uring batches UDP datagram sends for the channel fan-out
// path (spec.md §4.5). It completes the teacher's unwired
// pawelgaczynski/giouring dependency: the teacher's go.mod declares it
// but its giouring-tagged source actually imports the unrelated
// iceber/iouring-go instead. Here the giouring build exercises the
// declared dependency for real, submitting batched IORING_OP_SENDMSG;
// the portable build falls back to sequential
// net.UDPConn.WriteMsgUDP calls.
//
// Grounded on the teacher's internal/uring Ring/Batch/Result interface
// shape (interface.go) and the Prepare+Flush batching split from
// queue/runner.go's processRequests (N handleCompletion calls that each
// prepare an SQE, followed by one FlushSubmissions syscall),
// generalized from ublk I/O commands to outbound datagrams.
package uring

import (
	"errors"
	"net"

	"github.com/eclipse-score/datarouter-go/internal/constants"
)

// ErrRingFull is returned when a Sink's pending-submission batch is
// already at constants.KVectorCount and cannot accept another
// PrepareSend until FlushSubmissions runs.
var ErrRingFull = errors.New("submission batch full")

// Result reports one datagram's send outcome.
type Result interface {
	UserData() uint64
	Value() int32
	Error() error
}

// Sink batches and sends UDP datagrams. Implementations: a giouring-
// backed ring (build tag giouring, Linux only) and a portable
// synchronous fallback (default build).
type Sink interface {
	Close() error

	// PrepareSend stages one datagram for dst with the given userData
	// tag, without submitting it. Returns ErrRingFull once
	// constants.KVectorCount datagrams are already staged.
	PrepareSend(dst *net.UDPAddr, payload []byte, userData uint64) error

	// FlushSubmissions submits all staged datagrams, returning how many
	// were submitted.
	FlushSubmissions() (uint32, error)

	// WaitForCompletions returns the results of previously flushed
	// sends. The giouring build blocks until at least one completion is
	// available and ignores timeoutMs; the portable build never blocks
	// and returns whatever completed during earlier flushes.
	WaitForCompletions(timeoutMs int) ([]Result, error)
}

// Config configures a Sink.
type Config struct {
	// FD is the underlying UDP socket's file descriptor, used directly
	// by the giouring build; the portable build instead uses Conn.
	FD int32
	// Conn is the UDP socket the portable fallback writes through.
	Conn *net.UDPConn
}

// New creates a Sink, selecting the giouring-backed implementation when
// built with -tags giouring on Linux, and the portable fallback
// otherwise.
func New(config Config) (Sink, error) {
	return newSink(config)
}

// resultErr is the shared concrete Result implementation used by both
// builds.
type resultErr struct {
	userData uint64
	value    int32
	err      error
}

func (r *resultErr) UserData() uint64 { return r.userData }
func (r *resultErr) Value() int32     { return r.value }
func (r *resultErr) Error() error     { return r.err }

// maxBatch mirrors constants.KVectorCount: the fixed number of staging
// buffers a Sink rotates through before a flush is required.
const maxBatch = constants.KVectorCount
