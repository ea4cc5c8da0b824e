package shm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.shmem")

	m, err := Create(path, 4096)
	require.NoError(t, err)
	require.Len(t, m.Bytes(), 4096)

	m.Bytes()[0] = 0xAB
	require.NoError(t, m.Close())

	reopened, err := Open(path, 4096)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), reopened.Bytes()[0])
	require.NoError(t, reopened.Close())
}

func TestStaticAndDynamicPaths(t *testing.T) {
	require.Equal(t, "/tmp/logging.abcd.1000.shmem", StaticPath("abcd", 1000))
	require.Equal(t, "/tmp/logging-xyz123.shmem", DynamicPath("xyz123"))
}

func TestRandomSuffixLength(t *testing.T) {
	s := RandomSuffix()
	require.Len(t, s, 6)
}
