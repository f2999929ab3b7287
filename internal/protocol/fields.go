package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded protobuf wire field: either a varint/fixed
// numeric payload (in u64) or a length-delimited payload (in b).
type field struct {
	num protowire.Number
	typ protowire.Type
	u64 uint64
	b   []byte
}

// consumeField reads one tag+value pair off body, returning the
// number of bytes consumed. Unknown wire types are skipped via
// ConsumeFieldValue so a forward-compatible message never fails to
// decode solely because of a field this code doesn't know about yet.
func consumeField(body []byte) (field, int, bool) {
	num, typ, n := protowire.ConsumeTag(body)
	if n < 0 {
		return field{}, 0, false
	}
	rest := body[n:]
	switch typ {
	case protowire.VarintType:
		v, m := protowire.ConsumeVarint(rest)
		if m < 0 {
			return field{}, 0, false
		}
		return field{num: num, typ: typ, u64: v}, n + m, true
	case protowire.Fixed32Type:
		v, m := protowire.ConsumeFixed32(rest)
		if m < 0 {
			return field{}, 0, false
		}
		return field{num: num, typ: typ, u64: uint64(v)}, n + m, true
	case protowire.Fixed64Type:
		v, m := protowire.ConsumeFixed64(rest)
		if m < 0 {
			return field{}, 0, false
		}
		return field{num: num, typ: typ, u64: v}, n + m, true
	case protowire.BytesType:
		v, m := protowire.ConsumeBytes(rest)
		if m < 0 {
			return field{}, 0, false
		}
		return field{num: num, typ: typ, b: v}, n + m, true
	default:
		m := protowire.ConsumeFieldValue(num, typ, rest)
		if m < 0 {
			return field{}, 0, false
		}
		return field{num: num, typ: typ}, n + m, true
	}
}

// walkFields calls fn once per field in body, in wire order, and
// returns an error at the first malformed or truncated field. The
// strict decoders use it; the forgiving Features decoder
// (protocol/forgiving.go) calls consumeField itself so it can stop
// quietly at truncation instead.
func walkFields(body []byte, fn func(field) error) error {
	b := body
	for len(b) > 0 {
		f, n, ok := consumeField(b)
		if !ok {
			return fmt.Errorf("protocol: malformed field at offset %d", len(body)-len(b))
		}
		if err := fn(f); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(uint32(v)))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, []byte(v))
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUint32Slice(b []byte, num protowire.Number, vs []uint32) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}
