package channel

import (
	"net"
	"testing"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/errkind"
	"github.com/eclipse-score/datarouter-go/internal/uring"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T, verbose bool) (*Channel, *net.UDPConn) {
	rx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	tx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	sink, err := uring.New(uring.Config{Conn: tx})
	require.NoError(t, err)

	ch := New("trace", 1, rx.LocalAddr().(*net.UDPAddr), verbose, sink, time.Now())
	t.Cleanup(func() { rx.Close(); tx.Close() })
	return ch, rx
}

func TestRouteSendsAndFlushesWhenVerbose(t *testing.T) {
	ch, rx := newTestChannel(t, true)

	require.NoError(t, ch.Route([]byte("hello"), time.Now()))

	require.NoError(t, rx.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 64)
	n, _, err := rx.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestRouteRejectsOversizePayload(t *testing.T) {
	ch, _ := newTestChannel(t, true)
	big := make([]byte, 2000)
	err := ch.Route(big, time.Now())
	require.Error(t, err)
	require.Equal(t, errkind.InvalidSize, errkind.Of(err))
}

func TestMatchesChannelMask(t *testing.T) {
	ch, _ := newTestChannel(t, true)
	ch.Mask = 0b0010
	require.True(t, ch.Matches(0b0011))
	require.False(t, ch.Matches(0b0100))
}
