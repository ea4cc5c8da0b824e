// Package shortmsg implements spec.md §4.3's session control channel:
// a POSIX-style short-message transport where each datagram carries a
// single tag byte plus a fixed payload no larger than
// constants.KMaxSendBytes. It is realized over AF_UNIX SOCK_DGRAM
// sockets, addressed via the well-known receiver names spec.md §7
// assigns to daemon and client.
//
// Grounded on the teacher's internal/ctrl package for the "thin wrapper
// around a raw fd with a typed Send/Recv surface and a *logging.Logger
// field" shape, and on internal/queue/runner.go's retry-with-bounded-
// attempts idiom (waiting for a udev-created device node) for Dialer's
// connect retry loop, here waiting for the daemon's receiver socket to
// exist.
package shortmsg

import (
	"fmt"
	"net"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/constants"
	"github.com/eclipse-score/datarouter-go/internal/errkind"
	"github.com/eclipse-score/datarouter-go/internal/logging"
)

// socketDir is where well-known receiver names (spec.md §6, all of
// which read like absolute abstract-namespace names, e.g.
// "/logging.datarouter_recv") are realized as AF_UNIX filesystem paths.
const socketDir = "/tmp"

// DaemonSocketPath returns the daemon's well-known receiver path.
func DaemonSocketPath() string {
	return socketDir + constants.DaemonReceiverName
}

// StaticClientSocketPath returns a fixed-identity producer's receiver
// path.
func StaticClientSocketPath(appID string, uid uint32) string {
	return socketDir + fmt.Sprintf(constants.StaticClientReceiverFmt, appID, uid)
}

// DynamicClientSocketPath returns a randomized-identity producer's
// receiver path.
func DynamicClientSocketPath(suffix string) string {
	return socketDir + fmt.Sprintf(constants.DynamicClientReceiverFmt, suffix)
}

// Message is one decoded short message: a tag byte and its payload
// (payload excludes the tag).
type Message struct {
	Tag     byte
	Payload []byte
	From    *net.UnixAddr
}

// Endpoint wraps an AF_UNIX SOCK_DGRAM socket bound to a well-known
// receiver name, used by both the daemon (bound to
// constants.DaemonReceiverName) and producers (bound to their own
// per-session name).
type Endpoint struct {
	conn   *net.UnixConn
	logger *logging.Logger
}

// Listen binds a new Endpoint at path, removing any stale socket file
// left behind by a previous run at the same path.
func Listen(path string) (*Endpoint, error) {
	_ = removeStale(path)
	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, errkind.Wrap("shortmsg.Listen", errkind.ConfigError, err)
	}
	return &Endpoint{conn: conn, logger: logging.Default()}, nil
}

func removeStale(path string) error {
	return unixRemove(path)
}

// Close shuts down the endpoint's socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// LocalAddr returns the bound path.
func (e *Endpoint) LocalAddr() *net.UnixAddr {
	return e.conn.LocalAddr().(*net.UnixAddr)
}

// SendTo writes buf (tag ‖ payload, already marshaled by internal/wire)
// to the peer at addr. Short messages never exceed
// constants.KMaxSendBytes+1, so a single syscall always suffices.
func (e *Endpoint) SendTo(addr *net.UnixAddr, buf []byte) error {
	_, err := e.conn.WriteToUnix(buf, addr)
	if err != nil {
		return errkind.Wrap("shortmsg.SendTo", errkind.SendFailure, err)
	}
	return nil
}

// Recv blocks until one datagram arrives or deadline passes (zero
// deadline means block indefinitely). It returns the raw tag byte and
// payload without interpreting them; callers decode with
// internal/wire's Unmarshal* functions keyed on the tag.
func (e *Endpoint) Recv(deadline time.Time) (Message, error) {
	if !deadline.IsZero() {
		if err := e.conn.SetReadDeadline(deadline); err != nil {
			return Message{}, errkind.Wrap("shortmsg.Recv", errkind.ConfigError, err)
		}
	}

	buf := make([]byte, 1+constants.KMaxSendBytes)
	n, from, err := e.conn.ReadFromUnix(buf)
	if err != nil {
		return Message{}, errkind.Wrap("shortmsg.Recv", errkind.SendFailure, err)
	}
	if n == 0 {
		return Message{}, errkind.New("shortmsg.Recv", errkind.CorruptEntry, "empty datagram")
	}
	return Message{Tag: buf[0], Payload: buf[1:n], From: from}, nil
}

// Dialer retries connecting to a peer's receiver socket, mirroring the
// teacher's bounded-retry wait for a device node to appear: a producer
// starting concurrently with the daemon must tolerate the daemon's
// receiver socket not existing yet.
type Dialer struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultDialer retries for roughly one constants.ConnectTimeout window.
func DefaultDialer() Dialer {
	return Dialer{MaxAttempts: 50, Delay: constants.ConnectTimeout / 50}
}

// DialPeer resolves peerPath as a *net.UnixAddr, retrying while the
// path doesn't yet exist as a socket.
func (d Dialer) DialPeer(peerPath string) (*net.UnixAddr, error) {
	addr := &net.UnixAddr{Name: peerPath, Net: "unixgram"}

	attempts := d.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if socketExists(peerPath) {
			return addr, nil
		}
		lastErr = errkind.New("shortmsg.DialPeer", errkind.ConfigError, "peer receiver not present")
		if d.Delay > 0 {
			time.Sleep(d.Delay)
		}
	}
	return nil, lastErr
}
