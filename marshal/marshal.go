// Package marshal implements the host<->foreign value boundary: a copy
// boundary crossed on polyglot block entry (host to foreign) and exit
// (foreign to host), with a fast path for primitive scalars and generic
// recursive handling for containers.
package marshal

import (
	"fmt"

	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/value"
)

// Direction distinguishes the two crossings a marshalled value can make.
type Direction string

const (
	ToForeign Direction = "host->foreign"
	ToHost    Direction = "foreign->host"
)

// Foreign is the foreign-side representation a Marshaller produces and
// consumes. Interpreted-language executors see this as the structure they
// serialize to JSON (package marshal never does the JSON encoding itself
// — that is the subprocess executor's job); compiled-language executors
// see it as the structure fed to Encode (wire.go).
type Foreign struct {
	Kind  value.Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Items []Foreign     // Array
	Pairs []ForeignPair // Dict, Struct (order preserved)
	Type  string        // Struct's type id
}

// ForeignPair is one key/value entry of a marshalled Dict or Struct.
type ForeignPair struct {
	Key   string
	Value Foreign
}

// ToForeignValue converts a host Value into its foreign representation
// for language lang. Function and Foreign(lang!=lang) values are
// rejected with MarshallingError.
func ToForeignValue(v value.Value, lang string) (Foreign, error) {
	switch v.Kind() {
	case value.KindNull:
		return Foreign{Kind: value.KindNull}, nil
	case value.KindBool:
		b, _ := v.Bool()
		return Foreign{Kind: value.KindBool, Bool: b}, nil
	case value.KindInt:
		i, _ := v.Int()
		return Foreign{Kind: value.KindInt, Int: i}, nil
	case value.KindFloat:
		f, _ := v.Float()
		return Foreign{Kind: value.KindFloat, Float: f}, nil
	case value.KindString:
		s, _ := v.Str()
		return Foreign{Kind: value.KindString, Str: s}, nil
	case value.KindArray:
		items := v.ArrayItems()
		out := make([]Foreign, len(items))
		for i, it := range items {
			fv, err := ToForeignValue(it, lang)
			if err != nil {
				return Foreign{}, err
			}
			out[i] = fv
		}
		return Foreign{Kind: value.KindArray, Items: out}, nil
	case value.KindDict:
		keys := v.DictKeys()
		pairs := make([]ForeignPair, 0, len(keys))
		for _, k := range keys {
			hv, err := v.DictGet(k)
			if err != nil {
				return Foreign{}, polyerrors.InternalError("dict key vanished during marshalling", err)
			}
			fv, err := ToForeignValue(hv, lang)
			if err != nil {
				return Foreign{}, err
			}
			pairs = append(pairs, ForeignPair{Key: k, Value: fv})
		}
		return Foreign{Kind: value.KindDict, Pairs: pairs}, nil
	case value.KindStruct:
		typeID, _ := v.StructTypeID()
		order := v.StructFieldOrder()
		pairs := make([]ForeignPair, 0, len(order))
		for _, f := range order {
			hv, err := v.StructGet(f)
			if err != nil {
				return Foreign{}, polyerrors.InternalError("struct field vanished during marshalling", err)
			}
			fv, err := ToForeignValue(hv, lang)
			if err != nil {
				return Foreign{}, err
			}
			pairs = append(pairs, ForeignPair{Key: f, Value: fv})
		}
		return Foreign{Kind: value.KindStruct, Type: typeID, Pairs: pairs}, nil
	case value.KindForeign:
		fv, _ := v.ForeignValue()
		if fv.Lang != lang {
			return Foreign{}, polyerrors.MarshallingError(string(ToForeign), fmt.Sprintf("foreign(lang=%s) crossing into %s", fv.Lang, lang))
		}
		// Identity crossing: pass the opaque handle through unchanged,
		// carried in Str as an internal reference token; executors
		// resolve it back to the handle.
		return Foreign{Kind: value.KindForeign, Str: fmt.Sprintf("%p", fv.Opaque)}, nil
	case value.KindFunction, value.KindNative:
		return Foreign{}, polyerrors.MarshallingError(string(ToForeign), v.Kind().String())
	default:
		return Foreign{}, polyerrors.MarshallingError(string(ToForeign), v.Kind().String())
	}
}

// FromForeignValue is the exit-side conversion: a fresh host Value built
// from the foreign representation. Because the boundary is a copy
// boundary, the caller is responsible for assigning the result back into
// the host environment; FromForeignValue itself never mutates any
// existing host Value.
func FromForeignValue(f Foreign) (value.Value, error) {
	switch f.Kind {
	case value.KindNull:
		return value.Null, nil
	case value.KindBool:
		return value.Bool(f.Bool), nil
	case value.KindInt:
		return value.Int(f.Int), nil
	case value.KindFloat:
		return value.Float(f.Float), nil
	case value.KindString:
		return value.String(f.Str), nil
	case value.KindArray:
		items := make([]value.Value, len(f.Items))
		for i, it := range f.Items {
			hv, err := FromForeignValue(it)
			if err != nil {
				return value.Null, err
			}
			items[i] = hv
		}
		return value.NewArray(items), nil
	case value.KindDict:
		d := value.NewDict()
		for _, p := range f.Pairs {
			hv, err := FromForeignValue(p.Value)
			if err != nil {
				return value.Null, err
			}
			if err := d.DictSet(p.Key, hv); err != nil {
				return value.Null, polyerrors.InternalError("unmarshalling produced a non-dict", err)
			}
		}
		return d, nil
	case value.KindStruct:
		order := make([]string, len(f.Pairs))
		for i, p := range f.Pairs {
			order[i] = p.Key
		}
		s := value.NewStruct(f.Type, order)
		for _, p := range f.Pairs {
			hv, err := FromForeignValue(p.Value)
			if err != nil {
				return value.Null, err
			}
			if err := s.StructSet(p.Key, hv); err != nil {
				return value.Null, polyerrors.InternalError("unmarshalling produced an incompatible struct", err)
			}
		}
		return s, nil
	default:
		return value.Null, polyerrors.MarshallingError(string(ToHost), fmt.Sprintf("kind %d", f.Kind))
	}
}
