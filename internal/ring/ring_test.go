package ring

import (
	"sync"
	"testing"

	"github.com/eclipse-score/datarouter-go/internal/errkind"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseBasic(t *testing.T) {
	r := New(256)

	res, err := r.Acquire(10)
	require.NoError(t, err)
	require.Equal(t, uint32(0), res.Offset)
	require.Equal(t, uint32(14), res.Length)
	require.Len(t, res.Span(), 14)

	r.Release(res)
	require.True(t, true)
}

func TestAcquireFullReturnsBufferFull(t *testing.T) {
	r := New(16)

	_, err := r.Acquire(20)
	require.Error(t, err)
	require.Equal(t, errkind.BufferFull, errkind.Of(err))

	attempted, succeeded, full := r.StatsSnapshot()
	require.Equal(t, uint64(1), attempted)
	require.Equal(t, uint64(0), succeeded)
	require.Equal(t, uint64(1), full)
}

func TestSwitchAndDrain(t *testing.T) {
	r := New(4096)

	res1, err := r.Acquire(10)
	require.NoError(t, err)
	res2, err := r.Acquire(10)
	require.NoError(t, err)

	retired := r.Switch()
	require.Equal(t, uint32(0), retired)
	require.False(t, r.IsBlockReleasedByWriters(retired))

	r.Release(res1)
	require.False(t, r.IsBlockReleasedByWriters(retired))

	r.Release(res2)
	require.True(t, r.IsBlockReleasedByWriters(retired))

	// New writes land on the other half now.
	res3, err := r.Acquire(5)
	require.NoError(t, err)
	require.Equal(t, uint32(1), res3.HalfID)

	r.Half(retired).Reset()
	require.False(t, r.IsBlockReleasedByWriters(retired))
}

func TestConcurrentAcquireRelease(t *testing.T) {
	r := New(1 << 20)

	const writers = 32
	const perWriter = 200

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				res, err := r.Acquire(8)
				if err != nil {
					continue
				}
				r.Release(res)
			}
		}()
	}
	wg.Wait()

	attempted, succeeded, full := r.StatsSnapshot()
	require.Equal(t, attempted, succeeded+full)
	require.Equal(t, uint64(writers*perWriter), attempted)

	retired := r.Switch()
	require.True(t, r.IsBlockReleasedByWriters(retired))
}

func TestNewOverBuffer(t *testing.T) {
	buf := make([]byte, 64)
	r := NewOverBuffer(buf)
	require.Equal(t, 32, r.HalfCapacity())
	require.Equal(t, 64, r.TotalBytes())
}
