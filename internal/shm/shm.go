// Package shm maps the backing file for a session's alternating ring
// into process memory and constructs the well-known paths daemons and
// producers use to find each other (spec.md §4.1/§4.3/§7). Grounded on
// the teacher's internal/uring minimal.go, which opens an fd and calls
// unix.Mmap/unix.Munmap directly rather than going through an mmap
// wrapper library — this package follows the same pattern, since the
// pack never imports one (e.g. edsrzf/mmap-go) for a Go repo already
// depending on golang.org/x/sys.
package shm

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/eclipse-score/datarouter-go/internal/constants"
	"github.com/eclipse-score/datarouter-go/internal/errkind"
	"golang.org/x/sys/unix"
)

// Mapping is an open, mmap'd shared-memory file backing one session's
// ring.
type Mapping struct {
	file *os.File
	data []byte
	path string
}

// Create opens (creating if necessary) path, truncates it to size
// bytes, and mmaps it PROT_READ|PROT_WRITE/MAP_SHARED.
func Create(path string, size int) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errkind.Wrap("shm.Create", errkind.ConfigError, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errkind.Wrap("shm.Create", errkind.ConfigError, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errkind.Wrap("shm.Create", errkind.ConfigError, err)
	}

	return &Mapping{file: f, data: data, path: path}, nil
}

// Open mmaps an existing shared-memory file read-only (spec.md §6:
// "owner read/write, group & others read-only"). This is the daemon's
// side of the mapping: the daemon only ever reads a producer's ring,
// never flips its active-half atomic itself, so there is no reason for
// its view to be writable.
func Open(path string, size int) (*Mapping, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o400)
	if err != nil {
		return nil, errkind.Wrap("shm.Open", errkind.ConfigError, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errkind.Wrap("shm.Open", errkind.ConfigError, err)
	}

	return &Mapping{file: f, data: data, path: path}, nil
}

// Bytes returns the mapped region.
func (m *Mapping) Bytes() []byte { return m.data }

// Path returns the backing file's path.
func (m *Mapping) Path() string { return m.path }

// Close unmaps and closes the backing file. It does not remove the
// file; Remove does. The daemon's session teardown calls only Close, so
// a producer's shared-memory file, static or dynamic, stays on disk
// after its session ends.
func (m *Mapping) Close() error {
	if err := unix.Munmap(m.data); err != nil {
		return errkind.Wrap("shm.Close", errkind.ConfigError, err)
	}
	return m.file.Close()
}

// Remove deletes the backing file from the filesystem.
func (m *Mapping) Remove() error {
	return os.Remove(m.path)
}

// StaticPath builds the well-known path for an app with a fixed
// identity (spec.md §7): /tmp/logging.<APPID>.<UID>.shmem.
func StaticPath(appID string, uid uint32) string {
	return fmt.Sprintf(constants.StaticShmPathFmt, appID, uid)
}

// DynamicPath builds a path for an app that opted into a randomized
// identity, to avoid colliding with other instances of the same binary
// (spec.md §7): /tmp/logging-XXXXXX.shmem.
func DynamicPath(suffix string) string {
	return fmt.Sprintf(constants.DynamicShmPathFmt, suffix)
}

// RandomSuffix generates a RandomSuffixLen-byte alphanumeric suffix for
// dynamic identities. Not cryptographically random: collision cost is
// a retried Connect, not a security boundary.
func RandomSuffix() [6]byte {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	var out [6]byte
	for i := range out {
		out[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return out
}
