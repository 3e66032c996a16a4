package interp

import (
	"context"
	"fmt"

	"github.com/breadchris/polyglang/ast"
	"github.com/breadchris/polyglang/env"
	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/sandbox"
	"github.com/breadchris/polyglang/value"
)

func (ip *Interpreter) evalExpr(ctx context.Context, expr value.Expr, scope *env.Scope) (value.Value, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		v, ok := scope.Get(e.Name)
		if !ok {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, (&env.ErrUndeclared{Name: e.Name}).Error(), nil)
		}
		return v, nil

	case *ast.NullLit:
		return value.Null, nil
	case *ast.BoolLit:
		return value.Bool(e.Value), nil
	case *ast.IntLit:
		return value.Int(e.Value), nil
	case *ast.FloatLit:
		return value.Float(e.Value), nil
	case *ast.StringLit:
		if err := sandbox.CheckInputSize("string", len(e.Value)); err != nil {
			return value.Null, err
		}
		return value.String(e.Value), nil

	case *ast.ArrayLit:
		items := make([]value.Value, len(e.Elements))
		for i, el := range e.Elements {
			v, err := ip.evalExpr(ctx, el, scope)
			if err != nil {
				return value.Null, err
			}
			items[i] = v
		}
		return value.NewArray(items), nil

	case *ast.DictLit:
		d := value.NewDict()
		for i, k := range e.Keys {
			v, err := ip.evalExpr(ctx, e.Values[i], scope)
			if err != nil {
				return value.Null, err
			}
			_ = d.DictSet(k, v)
		}
		return d, nil

	case *ast.StructLit:
		ip.structsMu.RLock()
		order, declared := ip.structs[e.TypeID]
		ip.structsMu.RUnlock()
		if !declared {
			order = e.Fields
		}
		s := value.NewStruct(e.TypeID, order)
		for i, f := range e.Fields {
			v, err := ip.evalExpr(ctx, e.Values[i], scope)
			if err != nil {
				return value.Null, err
			}
			if err := s.StructSet(f, v); err != nil {
				return value.Null, polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
			}
		}
		return s, nil

	case *ast.FuncLit:
		return value.NewFunction(&value.Function{Params: e.Params, Defaults: e.Defaults, Body: e.Body, Env: scope}), nil

	case *ast.Unary:
		return ip.evalUnary(ctx, e, scope)

	case *ast.Logical:
		return ip.evalLogical(ctx, e, scope)

	case *ast.Binary:
		return ip.evalBinary(ctx, e, scope)

	case *ast.Pipeline:
		return ip.evalPipeline(ctx, e, scope)

	case *ast.Call:
		return ip.evalCall(ctx, e, scope)

	case *ast.Index:
		return ip.evalIndex(ctx, e, scope)

	case *ast.Field:
		x, err := ip.evalExpr(ctx, e.X, scope)
		if err != nil {
			return value.Null, err
		}
		v, err := x.StructGet(e.Name)
		if err != nil {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
		}
		return v, nil

	case *ast.PolyglotExpr:
		deadline := ip.deadline()
		return ip.execPolyglotExpr(ctx, e, scope, deadline)

	default:
		return value.Null, polyerrors.InternalError("unknown expression node", nil)
	}
}

func (ip *Interpreter) evalUnary(ctx context.Context, e *ast.Unary, scope *env.Scope) (value.Value, error) {
	x, err := ip.evalExpr(ctx, e.X, scope)
	if err != nil {
		return value.Null, err
	}
	switch e.Op {
	case "-":
		switch x.Kind() {
		case value.KindInt:
			i, _ := x.Int()
			return value.Int(-i), nil
		case value.KindFloat:
			f, _ := x.Float()
			return value.Float(-f), nil
		}
		return value.Null, typeErr("unary -", x)
	case "!":
		if x.Kind() != value.KindBool {
			return value.Null, typeErr("unary !", x)
		}
		b, _ := x.Bool()
		return value.Bool(!b), nil
	default:
		return value.Null, polyerrors.InternalError("unknown unary operator "+e.Op, nil)
	}
}

func (ip *Interpreter) evalLogical(ctx context.Context, e *ast.Logical, scope *env.Scope) (value.Value, error) {
	left, err := ip.evalExpr(ctx, e.Left, scope)
	if err != nil {
		return value.Null, err
	}
	if left.Kind() != value.KindBool {
		return value.Null, typeErr(e.Op, left)
	}
	lb, _ := left.Bool()
	switch e.Op {
	case "&&":
		if !lb {
			return value.Bool(false), nil
		}
	case "||":
		if lb {
			return value.Bool(true), nil
		}
	default:
		return value.Null, polyerrors.InternalError("unknown logical operator "+e.Op, nil)
	}
	right, err := ip.evalExpr(ctx, e.Right, scope)
	if err != nil {
		return value.Null, err
	}
	if right.Kind() != value.KindBool {
		return value.Null, typeErr(e.Op, right)
	}
	return right, nil
}

func (ip *Interpreter) evalBinary(ctx context.Context, e *ast.Binary, scope *env.Scope) (value.Value, error) {
	left, err := ip.evalExpr(ctx, e.Left, scope)
	if err != nil {
		return value.Null, err
	}
	right, err := ip.evalExpr(ctx, e.Right, scope)
	if err != nil {
		return value.Null, err
	}
	switch e.Op {
	case "==":
		return value.Bool(valuesEqual(left, right)), nil
	case "!=":
		return value.Bool(!valuesEqual(left, right)), nil
	case "+", "-", "*", "/", "%", "<", "<=", ">", ">=":
		return arith(e.Op, left, right)
	default:
		return value.Null, polyerrors.InternalError("unknown binary operator "+e.Op, nil)
	}
}

func arith(op string, left, right value.Value) (value.Value, error) {
	// String concatenation is the one non-numeric case for "+".
	if op == "+" && left.Kind() == value.KindString && right.Kind() == value.KindString {
		ls, _ := left.Str()
		rs, _ := right.Str()
		return value.String(ls + rs), nil
	}
	if left.Kind() == value.KindInt && right.Kind() == value.KindInt {
		li, _ := left.Int()
		ri, _ := right.Int()
		return intArith(op, li, ri)
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return value.Null, typeErr(op, left)
	}
	return floatArith(op, lf, rf)
}

func asFloat(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.KindFloat:
		f, _ := v.Float()
		return f, true
	case value.KindInt:
		i, _ := v.Int()
		return float64(i), true
	default:
		return 0, false
	}
}

func intArith(op string, l, r int64) (value.Value, error) {
	switch op {
	case "+":
		v, err := value.AddInt(l, r)
		return wrapIntErr(v, err)
	case "-":
		v, err := value.SubInt(l, r)
		return wrapIntErr(v, err)
	case "*":
		v, err := value.MulInt(l, r)
		return wrapIntErr(v, err)
	case "/":
		v, err := value.DivInt(l, r)
		return wrapIntErr(v, err)
	case "%":
		if r == 0 {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, value.ErrDivisionByZero.Error(), nil)
		}
		return value.Int(l % r), nil
	case "<":
		return value.Bool(l < r), nil
	case "<=":
		return value.Bool(l <= r), nil
	case ">":
		return value.Bool(l > r), nil
	case ">=":
		return value.Bool(l >= r), nil
	default:
		return value.Null, polyerrors.InternalError("unknown arithmetic operator "+op, nil)
	}
}

func wrapIntErr(v int64, err error) (value.Value, error) {
	if err != nil {
		return value.Null, polyerrors.New(polyerrors.KindRuntimeError, err.Error(), err)
	}
	return value.Int(v), nil
}

func floatArith(op string, l, r float64) (value.Value, error) {
	switch op {
	case "+":
		return value.Float(l + r), nil
	case "-":
		return value.Float(l - r), nil
	case "*":
		return value.Float(l * r), nil
	case "/":
		return value.Float(l / r), nil
	case "%":
		return value.Null, polyerrors.New(polyerrors.KindRuntimeError, "% requires int operands", nil)
	case "<":
		return value.Bool(l < r), nil
	case "<=":
		return value.Bool(l <= r), nil
	case ">":
		return value.Bool(l > r), nil
	case ">=":
		return value.Bool(l >= r), nil
	default:
		return value.Null, polyerrors.InternalError("unknown arithmetic operator "+op, nil)
	}
}

func typeErr(op string, v value.Value) error {
	return polyerrors.New(polyerrors.KindRuntimeError, fmt.Sprintf("operator %s not defined for %s", op, v.Kind()), nil)
}

// evalPipeline implements `a |> f` as `f(a)`, or — when the right side is
// itself a call — as inserting a as that call's first argument.
func (ip *Interpreter) evalPipeline(ctx context.Context, e *ast.Pipeline, scope *env.Scope) (value.Value, error) {
	left, err := ip.evalExpr(ctx, e.Left, scope)
	if err != nil {
		return value.Null, err
	}
	if call, ok := e.Right.(*ast.Call); ok {
		callee, err := ip.evalExpr(ctx, call.Callee, scope)
		if err != nil {
			return value.Null, err
		}
		args := make([]value.Value, 0, len(call.Args)+1)
		args = append(args, left)
		for _, a := range call.Args {
			v, err := ip.evalExpr(ctx, a, scope)
			if err != nil {
				return value.Null, err
			}
			args = append(args, v)
		}
		return ip.applyCallable(ctx, callee, args)
	}
	callee, err := ip.evalExpr(ctx, e.Right, scope)
	if err != nil {
		return value.Null, err
	}
	return ip.applyCallable(ctx, callee, []value.Value{left})
}

func (ip *Interpreter) evalCall(ctx context.Context, e *ast.Call, scope *env.Scope) (value.Value, error) {
	callee, err := ip.evalExpr(ctx, e.Callee, scope)
	if err != nil {
		return value.Null, err
	}
	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := ip.evalExpr(ctx, a, scope)
		if err != nil {
			return value.Null, err
		}
		args[i] = v
	}
	return ip.applyCallable(ctx, callee, args)
}

// applyCallable runs a Function or Native value; a fresh child
// environment of the callee's captured environment is created for every
// call, parameters are bound positionally with default-value resolution
// for omitted trailing arguments, and the body's most recent `return`
// supplies the result (Null if control falls off the end).
func (ip *Interpreter) applyCallable(ctx context.Context, callee value.Value, args []value.Value) (value.Value, error) {
	if native, ok := callee.Native(); ok {
		return native(args)
	}
	fn, ok := callee.Function()
	if !ok {
		return value.Null, polyerrors.New(polyerrors.KindRuntimeError, fmt.Sprintf("value of kind %s is not callable", callee.Kind()), nil)
	}

	pop, err := ip.pushCallFrame()
	if err != nil {
		return value.Null, err
	}
	defer pop()

	hostEnv, ok := fn.Env.(*env.Scope)
	if !ok {
		return value.Null, polyerrors.InternalError("function captured a non-scope environment", nil)
	}
	call := hostEnv.Child()

	if len(args) > len(fn.Params) {
		return value.Null, polyerrors.New(polyerrors.KindRuntimeError, fmt.Sprintf("too many arguments: got %d, want at most %d", len(args), len(fn.Params)), nil)
	}
	for i, p := range fn.Params {
		if i < len(args) {
			call.Declare(p.Name, args[i])
			continue
		}
		if i < len(fn.Defaults) && fn.Defaults[i] != nil {
			v, err := ip.evalExpr(ctx, fn.Defaults[i], call)
			if err != nil {
				return value.Null, err
			}
			call.Declare(p.Name, v)
			continue
		}
		return value.Null, polyerrors.New(polyerrors.KindRuntimeError, fmt.Sprintf("missing argument %q", p.Name), nil)
	}

	err = ip.execStmt(ctx, fn.Body, call)
	if err == nil {
		return value.Null, nil
	}
	if ret, ok := err.(returnSignal); ok {
		return ret.Value, nil
	}
	return value.Null, err
}

func (ip *Interpreter) evalIndex(ctx context.Context, e *ast.Index, scope *env.Scope) (value.Value, error) {
	x, err := ip.evalExpr(ctx, e.X, scope)
	if err != nil {
		return value.Null, err
	}
	idx, err := ip.evalExpr(ctx, e.Idx, scope)
	if err != nil {
		return value.Null, err
	}
	switch x.Kind() {
	case value.KindArray:
		i, ok := idx.Int()
		if !ok {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, "array index must be int", nil)
		}
		v, err := x.ArrayGet(int(i))
		if err != nil {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
		}
		return v, nil
	case value.KindDict:
		k, ok := idx.Str()
		if !ok {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, "dict key must be a string literal", nil)
		}
		v, err := x.DictGet(k)
		if err != nil {
			return value.Null, polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
		}
		return v, nil
	default:
		return value.Null, polyerrors.New(polyerrors.KindRuntimeError, fmt.Sprintf("cannot index %s", x.Kind()), nil)
	}
}
