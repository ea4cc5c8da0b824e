package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, EntryHeaderSize)
	h := BufferEntryHeader{TimestampNs: 1234567890, TypeID: 42}
	MarshalEntryHeader(buf, h)

	got, err := UnmarshalEntryHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h.TimestampNs, got.TimestampNs)
	require.Equal(t, h.TypeID, got.TypeID)
}

func TestUnmarshalEntryHeaderShort(t *testing.T) {
	_, err := UnmarshalEntryHeader(make([]byte, 4))
	require.Error(t, err)
}

func TestLengthRoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	PutLength(buf, 999)
	got, err := GetLength(buf)
	require.NoError(t, err)
	require.Equal(t, uint32(999), got)
}

func TestRegistrationTypeIDRoundTrip(t *testing.T) {
	buf := make([]byte, RegistrationHeaderSize)
	PutRegistrationTypeID(buf, 7)
	got, err := GetRegistrationTypeID(buf)
	require.NoError(t, err)
	require.Equal(t, TypeIdentifier(7), got)
}

func TestConnectRoundTrip(t *testing.T) {
	buf := make([]byte, 1+ConnectPayloadSize)
	m := ConnectMsg{AppID: [4]byte{'A', 'P', 'P', '1'}, UID: 1000, UseDynamicID: true, RandomSuffix: [6]byte{'a', 'b', 'c', 'd', 'e', 'f'}}
	n := MarshalConnect(buf, m)
	require.Equal(t, len(buf), n)
	require.Equal(t, TagConnect, buf[0])

	got, err := UnmarshalConnect(buf[1:])
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestAcquireResponseRoundTrip(t *testing.T) {
	buf := make([]byte, 1+AcquireResponsePayloadSize)
	n := MarshalAcquireResponse(buf, AcquireResponseMsg{AcquiredBuffer: 1})
	require.Equal(t, len(buf), n)

	got, err := UnmarshalAcquireResponse(buf[1:])
	require.NoError(t, err)
	require.Equal(t, uint32(1), got.AcquiredBuffer)
}
