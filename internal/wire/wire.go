// Package wire defines the on-the-wire / on-shared-memory byte layouts
// of the ring's linear buffer entries and the session control channel's
// messages, plus manual binary.LittleEndian marshal/unmarshal functions
// for them. Grounded directly on the teacher's internal/uapi package:
// fixed-size structs with a compile-time "var _ [N]byte = [unsafe.Sizeof(T{})]byte{}"
// size assertion (structs.go) and hand-written field-by-field
// binary.LittleEndian Put/Get pairs (marshal.go), rather than reflection
// or encoding/gob — the same rationale applies here: these layouts cross
// a process boundary (shared memory, AF_UNIX datagrams) and must be
// exact regardless of struct padding rules.
package wire

import (
	"encoding/binary"
	"unsafe"

	"github.com/eclipse-score/datarouter-go/internal/errkind"
)

// TypeIdentifier is the 16-bit daemon-local key identifying a record
// schema registered by a producer (spec.md §3 GLOSSARY).
type TypeIdentifier uint16

// RegisterTypeToken is the sentinel TypeIdentifier marking a type
// registration record.
const RegisterTypeToken TypeIdentifier = 0xFFFF

// EntryHeaderSize is the fixed, wire-exact size of BufferEntryHeader.
const EntryHeaderSize = 16

// BufferEntryHeader precedes every record's payload inside a ring half
// (spec.md §3 "Linear buffer entry"): TimestampNs ‖ TypeID ‖ padding.
type BufferEntryHeader struct {
	TimestampNs int64          // producer-side timestamp, UnixNano
	TypeID      TypeIdentifier // 16-bit type identifier
	_           [6]byte        // reserved, pads the header to EntryHeaderSize bytes
}

var _ [EntryHeaderSize]byte = [unsafe.Sizeof(BufferEntryHeader{})]byte{}

// MarshalEntryHeader writes h into buf[0:EntryHeaderSize].
func MarshalEntryHeader(buf []byte, h BufferEntryHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.TimestampNs))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(h.TypeID))
}

// UnmarshalEntryHeader reads a BufferEntryHeader from buf[0:EntryHeaderSize].
func UnmarshalEntryHeader(buf []byte) (BufferEntryHeader, error) {
	if len(buf) < EntryHeaderSize {
		return BufferEntryHeader{}, errkind.New("UnmarshalEntryHeader", errkind.CorruptEntry, "short header")
	}
	return BufferEntryHeader{
		TimestampNs: int64(binary.LittleEndian.Uint64(buf[0:8])),
		TypeID:      TypeIdentifier(binary.LittleEndian.Uint16(buf[8:10])),
	}, nil
}

// LengthPrefixSize is the size of the entry's leading Length field.
const LengthPrefixSize = 4

// PutLength writes the total-entry-length prefix (spec.md §3: "Length
// (unsigned 32-bit, total bytes including this field)").
func PutLength(buf []byte, totalLen uint32) {
	binary.LittleEndian.PutUint32(buf[0:4], totalLen)
}

// GetLength reads the length prefix. Returns CorruptEntry if buf is too
// short to even hold a length field.
func GetLength(buf []byte) (uint32, error) {
	if len(buf) < LengthPrefixSize {
		return 0, errkind.New("GetLength", errkind.CorruptEntry, "short length prefix")
	}
	return binary.LittleEndian.Uint32(buf[0:4]), nil
}

// EntryOverhead is the number of bytes an entry costs beyond its
// payload: the length prefix plus the entry header.
const EntryOverhead = LengthPrefixSize + EntryHeaderSize

// RegistrationHeaderSize is the size of a registration record's fixed
// prefix (TypeId), before the free-form name bytes.
const RegistrationHeaderSize = 4

// PutRegistrationTypeID writes the allocated TypeId at the start of a
// registration record's payload.
func PutRegistrationTypeID(buf []byte, id TypeIdentifier) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(id))
}

// GetRegistrationTypeID reads the allocated TypeId from a registration
// record's payload.
func GetRegistrationTypeID(buf []byte) (TypeIdentifier, error) {
	if len(buf) < RegistrationHeaderSize {
		return 0, errkind.New("GetRegistrationTypeID", errkind.CorruptEntry, "short registration payload")
	}
	return TypeIdentifier(binary.LittleEndian.Uint32(buf[0:4])), nil
}
