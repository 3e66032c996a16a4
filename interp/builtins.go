package interp

import (
	"fmt"
	"io"

	"github.com/breadchris/polyglang/env"
	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/value"
)

// installBuiltinsTo registers the small set of host-implemented callables
// (Native variant) that every program can reach without a module use:
// print, len, append and keys. Everything beyond these is a standard
// library module, specified only as a capability contract — these four
// sit below that boundary, the minimum a tree-walker needs to run a
// program at all. out receives print's output; tests pass a
// bytes.Buffer, New's default is os.Stdout.
func installBuiltinsTo(scope *env.Scope, out io.Writer) {
	scope.Declare("print", value.NewNative(func(args []value.Value) (value.Value, error) {
		parts := make([]interface{}, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(out, parts...)
		return value.Null, nil
	}))

	scope.Declare("len", value.NewNative(func(args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, "len expects exactly one argument", nil)
		}
		v := args[0]
		switch v.Kind() {
		case value.KindArray:
			n, _ := v.ArrayLen()
			return value.Int(int64(n)), nil
		case value.KindDict:
			return value.Int(int64(len(v.DictKeys()))), nil
		case value.KindString:
			s, _ := v.Str()
			return value.Int(int64(len(s))), nil
		default:
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, fmt.Sprintf("len: unsupported type %s", v.Kind()), nil)
		}
	}))

	scope.Declare("append", value.NewNative(func(args []value.Value) (value.Value, error) {
		if len(args) < 1 || args[0].Kind() != value.KindArray {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, "append expects an array as its first argument", nil)
		}
		for _, item := range args[1:] {
			if err := args[0].ArrayAppend(item); err != nil {
				return value.Null, polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
			}
		}
		return args[0], nil
	}))

	scope.Declare("keys", value.NewNative(func(args []value.Value) (value.Value, error) {
		if len(args) != 1 || args[0].Kind() != value.KindDict {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, "keys expects a single dict argument", nil)
		}
		ks := args[0].DictKeys()
		items := make([]value.Value, len(ks))
		for i, k := range ks {
			items[i] = value.String(k)
		}
		return value.NewArray(items), nil
	}))
}
