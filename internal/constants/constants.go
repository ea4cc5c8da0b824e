// Package constants collects the tunables named throughout the
// specification so they live in one reviewable place instead of being
// scattered as magic numbers.
package constants

import "time"

const (
	// MaxPayloadSize is the default maximum payload a single record may
	// carry. Larger AllocAndWrite calls fail with InvalidSize.
	MaxPayloadSize = 65500

	// RegisterTypeToken is the sentinel TypeIdentifier marking a type
	// registration record rather than an application record.
	RegisterTypeToken uint16 = 0xFFFF

	// DefaultRingHalfBytes is the default size of one ring half.
	DefaultRingHalfBytes = 4 << 20 // 4 MiB per half, 8 MiB total

	// KMaxSendBytes bounds a short-message-channel payload (the fixed
	// struct after the tag byte), per spec.md §6.
	KMaxSendBytes = 17
)

// Message tags for the session control channel (spec.md §4.3/§6).
const (
	TagConnect         byte = 1
	TagAcquireRequest  byte = 2
	TagAcquireResponse byte = 3
)

const (
	// KTicksWithoutAcquireWhileNoWrites bounds how long the scheduler
	// waits with no observed writes before issuing a keepalive
	// AcquireRequest anyway (spec.md §4.4 step 5, supplemented from
	// original_source's message_passing_server.cpp keepalive cadence).
	KTicksWithoutAcquireWhileNoWrites = 50

	// SchedulerIdleTick is the default period at which the daemon's
	// keepalive scanner enqueues every session for a tick, and the
	// receive loop's read deadline. The scheduler worker itself waits on
	// its work-queue CV without a timeout.
	SchedulerIdleTick = 100 * time.Millisecond

	// ConnectTimeout bounds Connect establishment (spec.md §5).
	ConnectTimeout = 1 * time.Second

	// QuotaStatPeriod is the window a session's quota rate is measured
	// over before it rolls over and clears any latched overlimit flag,
	// taken from original_source's dlt_log_channel.h bandwidth_denominator_
	// comment ("show_stats() cycle_time" of 10 seconds).
	QuotaStatPeriod = 10 * time.Second
)

// Channel fan-out constants (spec.md §4.5/§6).
const (
	// KVectorCount is the number of preallocated MTU-sized staging
	// buffers per channel.
	KVectorCount = 4

	// UDPMaxPayload = MTU(1500) - IPv4(20) - UDP(8).
	UDPMaxPayload = 1472

	// KBurstFileTransferControlCount paces file-transfer records: every
	// Nth invocation sleeps briefly to give other traffic a chance.
	KBurstFileTransferControlCount = 5

	// FileTransferPaceQuantum is the sleep duration applied every
	// KBurstFileTransferControlCount-th file-transfer record, taken from
	// original_source's socketserver.cpp pacing constant.
	FileTransferPaceQuantum = 2 * time.Millisecond
)

// Shared-memory file layout (spec.md §6).
const (
	StaticShmPathFmt  = "/tmp/logging.%s.%d.shmem"
	DynamicShmPathFmt = "/tmp/logging-%s.shmem"

	// RandomSuffixLen is the length of the random suffix used by dynamic
	// shared-memory file names and dynamic receiver identifiers.
	RandomSuffixLen = 6
)

// Short-message channel receiver identifiers (spec.md §6).
const (
	DaemonReceiverName       = "/logging.datarouter_recv"
	StaticClientReceiverFmt  = "/logging.%s.%d"
	DynamicClientReceiverFmt = "/logging-%s"
)
