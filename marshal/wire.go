package marshal

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/value"
)

// Encode serializes f into the length-prefixed ABI buffer format consumed
// by the compiled-language wrapper. Each value is a one-byte kind tag
// followed by a kind-specific payload; protowire's varint and
// length-delimited primitives give a compact, endianness-safe encoding
// without hand-rolling one.
func Encode(f Foreign) []byte {
	var buf []byte
	return appendForeign(buf, f)
}

func appendForeign(buf []byte, f Foreign) []byte {
	buf = append(buf, byte(f.Kind))
	switch f.Kind {
	case value.KindNull:
		// no payload
	case value.KindBool:
		var b uint64
		if f.Bool {
			b = 1
		}
		buf = protowire.AppendVarint(buf, b)
	case value.KindInt:
		buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(f.Int))
	case value.KindFloat:
		buf = protowire.AppendFixed64(buf, math.Float64bits(f.Float))
	case value.KindString, value.KindForeign:
		buf = protowire.AppendBytes(buf, []byte(f.Str))
	case value.KindArray:
		buf = protowire.AppendVarint(buf, uint64(len(f.Items)))
		for _, item := range f.Items {
			buf = appendForeign(buf, item)
		}
	case value.KindDict:
		buf = protowire.AppendVarint(buf, uint64(len(f.Pairs)))
		for _, p := range f.Pairs {
			buf = protowire.AppendBytes(buf, []byte(p.Key))
			buf = appendForeign(buf, p.Value)
		}
	case value.KindStruct:
		buf = protowire.AppendBytes(buf, []byte(f.Type))
		buf = protowire.AppendVarint(buf, uint64(len(f.Pairs)))
		for _, p := range f.Pairs {
			buf = protowire.AppendBytes(buf, []byte(p.Key))
			buf = appendForeign(buf, p.Value)
		}
	}
	return buf
}

// Decode parses a buffer produced by Encode, returning the leftover bytes
// (empty for a well-formed single-value buffer; callers that batch
// multiple values, such as an argument list, use the leftover to continue
// consuming).
func Decode(buf []byte) (Foreign, []byte, error) {
	if len(buf) < 1 {
		return Foreign{}, nil, polyerrors.MarshallingError(string(ToHost), "truncated ABI buffer: missing kind tag")
	}
	kind := value.Kind(buf[0])
	rest := buf[1:]

	switch kind {
	case value.KindNull:
		return Foreign{Kind: kind}, rest, nil
	case value.KindBool:
		b, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("bool")
		}
		return Foreign{Kind: kind, Bool: b != 0}, rest[n:], nil
	case value.KindInt:
		zz, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("int")
		}
		return Foreign{Kind: kind, Int: protowire.DecodeZigZag(zz)}, rest[n:], nil
	case value.KindFloat:
		bits, n := protowire.ConsumeFixed64(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("float")
		}
		return Foreign{Kind: kind, Float: math.Float64frombits(bits)}, rest[n:], nil
	case value.KindString, value.KindForeign:
		b, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("string")
		}
		return Foreign{Kind: kind, Str: string(b)}, rest[n:], nil
	case value.KindArray:
		count, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("array length")
		}
		rest = rest[n:]
		return decodeArray(rest, count)
	case value.KindDict:
		count, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("dict length")
		}
		rest = rest[n:]
		return decodePairs(rest, count, value.KindDict, "")
	case value.KindStruct:
		typeBytes, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("struct type id")
		}
		rest = rest[n:]
		count, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("struct field count")
		}
		rest = rest[n:]
		return decodePairs(rest, count, value.KindStruct, string(typeBytes))
	default:
		return Foreign{}, nil, polyerrors.MarshallingError(string(ToHost), fmt.Sprintf("unknown wire kind tag %d", kind))
	}
}

func decodeArray(rest []byte, count uint64) (Foreign, []byte, error) {
	items := make([]Foreign, 0, count)
	for i := uint64(0); i < count; i++ {
		item, next, err := Decode(rest)
		if err != nil {
			return Foreign{}, nil, err
		}
		items = append(items, item)
		rest = next
	}
	return Foreign{Kind: value.KindArray, Items: items}, rest, nil
}

func decodePairs(rest []byte, count uint64, kind value.Kind, typeID string) (Foreign, []byte, error) {
	pairs := make([]ForeignPair, 0, count)
	for i := uint64(0); i < count; i++ {
		keyBytes, n := protowire.ConsumeBytes(rest)
		if n < 0 {
			return Foreign{}, nil, decodeErr("pair key")
		}
		rest = rest[n:]
		val, next, err := Decode(rest)
		if err != nil {
			return Foreign{}, nil, err
		}
		pairs = append(pairs, ForeignPair{Key: string(keyBytes), Value: val})
		rest = next
	}
	return Foreign{Kind: kind, Type: typeID, Pairs: pairs}, rest, nil
}

func decodeErr(what string) error {
	return polyerrors.MarshallingError(string(ToHost), fmt.Sprintf("malformed ABI buffer: %s", what))
}
