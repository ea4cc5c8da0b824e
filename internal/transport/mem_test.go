package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemorySinkRecordsFlushedSends(t *testing.T) {
	sink := NewMemory()
	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9001}

	require.NoError(t, sink.PrepareSend(dest, []byte("hello"), 1))
	require.NoError(t, sink.PrepareSend(dest, []byte("world"), 2))

	n, err := sink.FlushSubmissions()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	sent := sink.SentTo(dest.String())
	require.Len(t, sent, 2)
	require.Equal(t, "hello", string(sent[0].Payload))
	require.Equal(t, "world", string(sent[1].Payload))
}

func TestMemorySinkRejectsOverBatch(t *testing.T) {
	sink := NewMemory()
	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9001}

	for i := 0; i < 4; i++ {
		require.NoError(t, sink.PrepareSend(dest, []byte("x"), uint64(i)))
	}
	require.Error(t, sink.PrepareSend(dest, []byte("x"), 99))
}
