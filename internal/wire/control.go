package wire

import (
	"encoding/binary"

	"github.com/eclipse-score/datarouter-go/internal/errkind"
)

// Message tags for the session control channel (spec.md §4.3/§6).
const (
	TagConnect         byte = 1
	TagAcquireRequest  byte = 2
	TagAcquireResponse byte = 3
)

// ConnectPayloadSize is the fixed size of a Connect message's payload,
// per spec.md §4.3: app_id(4) ‖ uid(4) ‖ use_dynamic_id(1) ‖ random_suffix(6).
const ConnectPayloadSize = 15

// ConnectMsg advertises a producer's identity to the daemon.
type ConnectMsg struct {
	AppID        [4]byte
	UID          uint32
	UseDynamicID bool
	RandomSuffix [6]byte
}

// MarshalConnect writes m as TagConnect ‖ payload into buf, which must
// be at least 1+ConnectPayloadSize bytes.
func MarshalConnect(buf []byte, m ConnectMsg) int {
	buf[0] = TagConnect
	copy(buf[1:5], m.AppID[:])
	binary.LittleEndian.PutUint32(buf[5:9], m.UID)
	if m.UseDynamicID {
		buf[9] = 1
	} else {
		buf[9] = 0
	}
	copy(buf[10:16], m.RandomSuffix[:])
	return 1 + ConnectPayloadSize
}

// UnmarshalConnect reads a Connect payload (buf excludes the tag byte).
func UnmarshalConnect(buf []byte) (ConnectMsg, error) {
	if len(buf) < ConnectPayloadSize {
		return ConnectMsg{}, errkind.New("UnmarshalConnect", errkind.CorruptEntry, "short Connect payload")
	}
	var m ConnectMsg
	copy(m.AppID[:], buf[0:4])
	m.UID = binary.LittleEndian.Uint32(buf[4:8])
	m.UseDynamicID = buf[8] != 0
	copy(m.RandomSuffix[:], buf[9:15])
	return m, nil
}

// AcquireResponsePayloadSize is the size of an AcquireResponse payload:
// acquired_buffer(u32).
const AcquireResponsePayloadSize = 4

// AcquireResponseMsg identifies the retired half the daemon must read.
type AcquireResponseMsg struct {
	AcquiredBuffer uint32
}

// MarshalAcquireResponse writes m as TagAcquireResponse ‖ payload.
func MarshalAcquireResponse(buf []byte, m AcquireResponseMsg) int {
	buf[0] = TagAcquireResponse
	binary.LittleEndian.PutUint32(buf[1:5], m.AcquiredBuffer)
	return 1 + AcquireResponsePayloadSize
}

// UnmarshalAcquireResponse reads an AcquireResponse payload (buf
// excludes the tag byte).
func UnmarshalAcquireResponse(buf []byte) (AcquireResponseMsg, error) {
	if len(buf) < AcquireResponsePayloadSize {
		return AcquireResponseMsg{}, errkind.New("UnmarshalAcquireResponse", errkind.CorruptEntry, "short AcquireResponse payload")
	}
	return AcquireResponseMsg{AcquiredBuffer: binary.LittleEndian.Uint32(buf[0:4])}, nil
}

// MarshalAcquireRequest writes the (empty-payload) AcquireRequest tag.
func MarshalAcquireRequest(buf []byte) int {
	buf[0] = TagAcquireRequest
	return 1
}
