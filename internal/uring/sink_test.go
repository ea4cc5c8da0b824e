package uring

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStubSinkSendsBatch(t *testing.T) {
	rx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer rx.Close()

	tx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer tx.Close()

	sink, err := New(Config{Conn: tx})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.PrepareSend(rx.LocalAddr().(*net.UDPAddr), []byte("hello"), 1))
	require.NoError(t, sink.PrepareSend(rx.LocalAddr().(*net.UDPAddr), []byte("world"), 2))

	n, err := sink.FlushSubmissions()
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)

	results, err := sink.WaitForCompletions(0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, rx.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 64)
	nRead, _, err := rx.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:nRead]))
}

func TestStubSinkRejectsOverBatch(t *testing.T) {
	tx, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer tx.Close()

	sink, err := New(Config{Conn: tx})
	require.NoError(t, err)

	dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
	for i := 0; i < maxBatch; i++ {
		require.NoError(t, sink.PrepareSend(dst, []byte("x"), uint64(i)))
	}
	require.ErrorIs(t, sink.PrepareSend(dst, []byte("x"), 99), ErrRingFull)
}
