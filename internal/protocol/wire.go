// Package protocol implements the carrier-independent framer (spec
// §4.1, §6 "Wire protocol (bit-exact)"): it turns typed request
// messages into a 9-byte header plus a protobuf-encoded body, and
// parses the reverse. It has no notion of HID reports or USB bulk
// chunking — that belongs to internal/transport.
//
// Message bodies are encoded with google.golang.org/protobuf's
// low-level protowire package directly, field by field, rather than
// through generated .pb.go types. The spec's Open Questions forbid
// inventing the upstream Features field schema and type-code table; by
// encoding known fields with protowire and decoding the rest
// forgivingly (walking tag = field<<3|wire_type pairs) we never assume
// a schema we don't have, and the same machinery gives us the
// spec-mandated forgiving Features decode for free.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the 3-byte frame marker '?' '#' '#' (spec §6).
var Magic = [3]byte{0x3F, 0x23, 0x23}

// HeaderSize is the fixed carrier-independent header: magic(3) + type(2) + length(4).
const HeaderSize = 9

// ErrBadMagic is returned by DecodeHeader when the leading 3 bytes don't match Magic.
var ErrBadMagic = errors.New("protocol: bad magic")

// Header is the carrier-independent frame header (spec §6).
type Header struct {
	TypeCode uint16
	Length   uint32
}

// EncodeHeader writes the 9-byte header to dst, which must be at least HeaderSize long.
func EncodeHeader(h Header, dst []byte) {
	dst[0], dst[1], dst[2] = Magic[0], Magic[1], Magic[2]
	binary.BigEndian.PutUint16(dst[3:5], h.TypeCode)
	binary.BigEndian.PutUint32(dst[5:9], h.Length)
}

// DecodeHeader parses the 9-byte header from src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, fmt.Errorf("protocol: short header (%d bytes)", len(src))
	}
	if src[0] != Magic[0] || src[1] != Magic[1] || src[2] != Magic[2] {
		return Header{}, ErrBadMagic
	}
	return Header{
		TypeCode: binary.BigEndian.Uint16(src[3:5]),
		Length:   binary.BigEndian.Uint32(src[5:9]),
	}, nil
}

// DecodeError is the "recoverable decode error" kind the spec requires
// (§4.1): a structural decode failure distinct from a transport error,
// so the worker can take corrective action instead of treating it as a
// dead transport.
type DecodeError struct {
	TypeCode uint16
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode type %d: %s", e.TypeCode, e.Reason)
}

// CorruptedPolicyError is raised by Decode for a Features body when a policy name
// is not valid UTF-8 (spec §7 decode.corrupted_policy).
type CorruptedPolicyError struct {
	Index int
}

func (e *CorruptedPolicyError) Error() string {
	return fmt.Sprintf("protocol: invalid UTF-8 in policy name at index %d", e.Index)
}
