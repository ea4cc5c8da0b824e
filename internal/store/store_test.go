package store

import (
	"testing"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/ring"
	"github.com/eclipse-score/datarouter-go/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestTryRegisterTypeAllocatesDistinctIDs(t *testing.T) {
	s := New(ring.New(4096))
	now := time.Now()

	id1, isNew1, err := s.TryRegisterType("trace.Frame", now)
	require.NoError(t, err)
	require.True(t, isNew1)

	id2, isNew2, err := s.TryRegisterType("trace.Frame", now)
	require.NoError(t, err)
	require.True(t, isNew2)
	require.NotEqual(t, id1, id2)

	require.Equal(t, uint64(2), s.Counters().Snapshot().RegistrationsWritten)
}

func TestAllocAndWriteThenRead(t *testing.T) {
	s := New(ring.New(4096))
	now := time.Now()

	typeID, _, err := s.TryRegisterType("demo", now)
	require.NoError(t, err)

	require.NoError(t, s.AllocAndWrite(typeID, []byte("hello"), now))
	require.NoError(t, s.AllocAndWrite(typeID, []byte("world"), now))

	retired := s.Ring().Switch()

	var got []string
	err = s.Read(retired, func(e Entry) error {
		if e.Header.TypeID == wire.RegisterTypeToken {
			return nil
		}
		got = append(got, string(e.Payload))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world"}, got)
}

func TestReadSkipsCorruptEntryWithoutAbortingWholeHalf(t *testing.T) {
	s := New(ring.New(4096))
	now := time.Now()

	require.NoError(t, s.AllocAndWrite(1, []byte("good"), now))

	half := s.Ring().Half(s.Ring().ActiveHalfID())
	corruptOffset := half.AcquiredIndex()
	// Hand-craft a corrupt length prefix (claims far more bytes than the
	// half actually has), simulating a torn/malformed entry, then
	// reserve the space it lands in as if a producer had acquired it.
	wire.PutLength(half.Span()[corruptOffset:], 0xFFFFFFFF)
	_, err := s.Ring().Acquire(32)
	require.NoError(t, err)

	retired := s.Ring().Switch()

	var got []string
	err = s.Read(retired, func(e Entry) error {
		if e.Header.TypeID != wire.RegisterTypeToken {
			got = append(got, string(e.Payload))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, got)
	require.Equal(t, uint64(1), s.Counters().Snapshot().ReadErrors)

	// The half must still be safely resettable afterwards instead of
	// being permanently bricked by the aborted drain.
	s.Ring().Half(retired).Reset()
	require.Equal(t, uint32(0), s.Ring().Half(retired).AcquiredIndex())
}

func TestReadDetachedTruncatedEntry(t *testing.T) {
	s := New(ring.New(4096))
	now := time.Now()

	require.NoError(t, s.AllocAndWrite(1, []byte("payload"), now))
	half := s.Ring().Half(s.Ring().ActiveHalfID())
	// Simulate a partially-written trailing entry left behind by a peer
	// that disconnected mid-write: declare more acquired bytes than were
	// ever populated.
	res, err := s.Ring().Acquire(4)
	require.NoError(t, err)
	_ = res
	_ = half

	retired := s.Ring().Switch()
	err = s.ReadDetached(retired, func(Entry) error { return nil })
	require.NoError(t, err)
}
