// Package store layers record framing (internal/wire) and type
// registration on top of the alternating ring (internal/ring), giving
// producers AllocAndWrite/TryRegisterType and the daemon-side consumer
// Read/ReadDetached. This is spec.md §4.2's "Shared-memory record
// store," and is grounded on the teacher's internal/uapi marshal layer
// for the framing discipline (fixed headers, manual LittleEndian
// encode) and on internal/queue/pool.go for the producer-acquires /
// consumer-drains handoff shape, generalized from fixed-size I/O
// buffers to variable-length framed records.
package store

import (
	"sync"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/errkind"
	"github.com/eclipse-score/datarouter-go/internal/ring"
	"github.com/eclipse-score/datarouter-go/internal/wire"
)

// Counters are cumulative, atomically-safe-by-mutex statistics for one
// Store. They back the per-session diagnostics named in spec.md §4.2.
type Counters struct {
	mu                   sync.Mutex
	BytesWritten         uint64
	EntriesWritten       uint64
	RegistrationsWritten uint64
	ReadErrors           uint64
}

func (c *Counters) addWrite(n uint64) {
	c.mu.Lock()
	c.BytesWritten += n
	c.EntriesWritten++
	c.mu.Unlock()
}

func (c *Counters) addRegistration() {
	c.mu.Lock()
	c.RegistrationsWritten++
	c.mu.Unlock()
}

func (c *Counters) addReadError() {
	c.mu.Lock()
	c.ReadErrors++
	c.mu.Unlock()
}

// Snapshot returns a point-in-time copy safe to read without races.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{
		BytesWritten:         c.BytesWritten,
		EntriesWritten:       c.EntriesWritten,
		RegistrationsWritten: c.RegistrationsWritten,
		ReadErrors:           c.ReadErrors,
	}
}

// Store is the per-session record store: one Ring plus the producer's
// TypeIdentifier allocator.
type Store struct {
	ring *ring.Ring

	mu       sync.Mutex
	nextType wire.TypeIdentifier

	counters Counters
}

// New wraps an existing Ring (typically one backed by a shared-memory
// mapping) in a Store.
func New(r *ring.Ring) *Store {
	return &Store{
		ring: r,
	}
}

// Ring exposes the underlying ring for the scheduler/shm glue.
func (s *Store) Ring() *ring.Ring { return s.ring }

// Counters returns the store's running counters.
func (s *Store) Counters() *Counters { return &s.counters }

// TryRegisterType allocates the next TypeIdentifier, writes a
// registration record to the ring (spec.md §3: a record whose TypeID
// equals RegisterTypeToken, payload is the allocated id followed by the
// name), and returns the new id with true. Registration is not
// idempotent by name: every call allocates a fresh id, even for a name
// registered before. On a full ring it returns false and the error.
func (s *Store) TryRegisterType(name string, now time.Time) (wire.TypeIdentifier, bool, error) {
	s.mu.Lock()
	id := s.nextType
	s.nextType++
	s.mu.Unlock()

	payload := make([]byte, wire.RegistrationHeaderSize+len(name))
	wire.PutRegistrationTypeID(payload, id)
	copy(payload[wire.RegistrationHeaderSize:], name)

	if err := s.writeEntry(wire.RegisterTypeToken, payload, now); err != nil {
		return 0, false, err
	}
	s.counters.addRegistration()
	return id, true, nil
}

// AllocAndWrite reserves space for, and writes, one framed record:
// Length ‖ BufferEntryHeader{now, typeID} ‖ payload.
func (s *Store) AllocAndWrite(typeID wire.TypeIdentifier, payload []byte, now time.Time) error {
	return s.writeEntry(typeID, payload, now)
}

func (s *Store) writeEntry(typeID wire.TypeIdentifier, payload []byte, now time.Time) error {
	n := uint32(wire.EntryHeaderSize + len(payload))
	res, err := s.ring.Acquire(n)
	if err != nil {
		return errkind.Wrap("Store.writeEntry", errkind.BufferFull, err)
	}

	span := res.Span()
	wire.PutLength(span, res.Length)
	wire.MarshalEntryHeader(span[wire.LengthPrefixSize:], wire.BufferEntryHeader{
		TimestampNs: now.UnixNano(),
		TypeID:      typeID,
	})
	copy(span[wire.LengthPrefixSize+wire.EntryHeaderSize:], payload)

	s.ring.Release(res)
	s.counters.addWrite(uint64(res.Length))
	return nil
}

// Entry is one decoded record handed to a Read callback.
type Entry struct {
	Header  wire.BufferEntryHeader
	Payload []byte
}

// EntryFunc processes one decoded entry. Returning an error stops the
// read early without consuming further bytes.
type EntryFunc func(Entry) error

// Read walks a half's region from offset 0 up to its frozen
// acquired-index boundary (valid only once the half has been retired
// by ring.Switch), decoding each Length-prefixed entry and invoking fn.
// Registration records (TypeID == wire.RegisterTypeToken) are passed to
// fn like any other entry; callers that care distinguish by TypeID.
func (s *Store) Read(halfID uint32, fn EntryFunc) error {
	limit := s.ring.Half(halfID).AcquiredIndex()
	return s.readRange(halfID, limit, fn)
}

// ReadDetached behaves like Read but is safe to call on a half that the
// daemon owns exclusively after a peer disconnects mid-write (spec.md
// §4.4 "detach-drain"): it tolerates a final truncated entry at the
// boundary instead of treating it as corruption.
func (s *Store) ReadDetached(halfID uint32, fn EntryFunc) error {
	half := s.ring.Half(halfID)
	limit := half.AcquiredIndex()
	return s.readRangeTolerant(halfID, limit, fn)
}

func (s *Store) readRange(halfID uint32, limit uint32, fn EntryFunc) error {
	return s.walk(halfID, limit, fn, false)
}

func (s *Store) readRangeTolerant(halfID uint32, limit uint32, fn EntryFunc) error {
	return s.walk(halfID, limit, fn, true)
}

// walk drains raw[0:limit] entry by entry. A malformed entry is never
// fatal to the drain (spec.md §4.2/§7 "that entry is skipped, no
// side-effect beyond diagnostics logging", grounded on
// original_source's ReadLinearBuffer, which `continue`s past a record
// whose payload is too small to be useful): it is counted as a read
// error and walking resumes at the next entry whenever the length
// prefix can still be trusted to find it. Only when the length prefix
// itself is unusable (too small to cover the header, or it claims more
// bytes than remain in the half) is there no safe offset to resume
// from; walk then stops silently instead of raising a hard error, since
// an aborted drain still has to leave the half eligible for Reset.
// tolerant additionally accepts a final truncated entry at the
// boundary without counting it as an error, for detach-drain reads of
// a half that a disconnected peer stopped writing mid-record.
func (s *Store) walk(halfID uint32, limit uint32, fn EntryFunc, tolerant bool) error {
	half := s.ring.Half(halfID)
	raw := half.Span()

	var offset uint32
	for offset < limit {
		remaining := raw[offset:limit]
		total, err := wire.GetLength(remaining)
		if err != nil || total < uint32(wire.EntryOverhead) || total > limit-offset {
			if !tolerant {
				s.counters.addReadError()
			}
			return nil
		}

		body := remaining[wire.LengthPrefixSize:total]
		header, err := wire.UnmarshalEntryHeader(body)
		if err != nil {
			s.counters.addReadError()
			offset += total
			continue
		}
		payload := body[wire.EntryHeaderSize:]

		if err := fn(Entry{Header: header, Payload: payload}); err != nil {
			return err
		}

		offset += total
	}
	return nil
}
