package router

import (
	"net"
	"testing"
	"time"

	"github.com/eclipse-score/datarouter-go/internal/channel"
	"github.com/eclipse-score/datarouter-go/internal/ring"
	"github.com/eclipse-score/datarouter-go/internal/session"
	"github.com/eclipse-score/datarouter-go/internal/store"
	"github.com/eclipse-score/datarouter-go/internal/uring"
	"github.com/stretchr/testify/require"
)

func TestDrainRoutesToMatchingChannel(t *testing.T) {
	rx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer rx.Close()
	tx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer tx.Close()
	sink, err := uring.New(uring.Config{Conn: tx})
	require.NoError(t, err)

	ch := channel.New("trace", 1, rx.LocalAddr().(*net.UDPAddr), true, sink, time.Now())

	r := New(nil)
	r.AddChannel(ch)
	r.SetRoute(7, 1)

	st := store.New(ring.New(4096))
	now := time.Now()
	require.NoError(t, st.AllocAndWrite(7, []byte("payload-a"), now))
	retired := st.Ring().Switch()

	sess := session.New(1, "app", nil, st)
	require.NoError(t, r.Drain(sess, retired, false))

	require.NoError(t, rx.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 64)
	n, _, err := rx.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "payload-a", string(buf[:n]))
}

func TestDrainTracksTypeRegistrations(t *testing.T) {
	st := store.New(ring.New(4096))
	now := time.Now()
	_, _, err := st.TryRegisterType("demo.Event", now)
	require.NoError(t, err)
	retired := st.Ring().Switch()

	r := New(nil)
	sess := session.New(2, "app", nil, st)
	require.NoError(t, r.Drain(sess, retired, false))

	require.Equal(t, "demo.Event", r.TypeName(0))
}

func TestDrainSkipsRoutingWhileSessionQuotaOverlimit(t *testing.T) {
	rx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer rx.Close()
	tx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer tx.Close()
	sink, err := uring.New(uring.Config{Conn: tx})
	require.NoError(t, err)

	ch := channel.New("trace", 1, rx.LocalAddr().(*net.UDPAddr), true, sink, time.Now())

	r := New(nil)
	r.AddChannel(ch)
	r.SetRoute(7, 1)

	st := store.New(ring.New(4096))
	now := time.Now()
	require.NoError(t, st.AllocAndWrite(7, []byte("payload-a"), now))
	retired := st.Ring().Switch()

	sess := session.New(1, "app", nil, st)
	sess.SetQuota(1) // 1 KB/s, trivially exceeded below
	sess.RecordBytesRouted(0, now.Add(-time.Second)) // opens the statistics period
	sess.RecordBytesRouted(1<<20, now)
	require.True(t, sess.QuotaOverlimit())

	require.NoError(t, r.Drain(sess, retired, false))

	require.NoError(t, rx.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	buf := make([]byte, 64)
	_, _, err = rx.ReadFromUDP(buf)
	require.Error(t, err) // nothing was routed while latched overlimit
}

func TestDrainGlobalHandlerSeesEveryRecord(t *testing.T) {
	st := store.New(ring.New(4096))
	now := time.Now()
	require.NoError(t, st.AllocAndWrite(9, []byte("x"), now))
	retired := st.Ring().Switch()

	r := New(nil)
	var seen int
	r.AddGlobalHandler(func(sess *session.Session, entry store.Entry) {
		seen++
	})

	sess := session.New(3, "app", nil, st)
	require.NoError(t, r.Drain(sess, retired, false))
	require.Equal(t, 1, seen)
}
