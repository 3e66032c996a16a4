package interp

import (
	"context"
	"sync/atomic"

	"github.com/breadchris/polyglang/ast"
	"github.com/breadchris/polyglang/env"
	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/sandbox"
	"github.com/breadchris/polyglang/value"
)

// execBlock runs stmts in order against scope, scanning for maximal runs
// of consecutive polyglot-assignment statements and routing each such run
// through the dependency analyzer and parallel scheduler. A non-polyglot
// statement breaks any run around it, so no separate barrier bookkeeping
// is needed: the scan itself never lets a run span one.
func (ip *Interpreter) execBlock(ctx context.Context, stmts []value.Stmt, scope *env.Scope) error {
	i := 0
	for i < len(stmts) {
		if ip.cancelled() {
			return context.Canceled
		}
		if item, ok := ip.asPolyglotStmt(stmts[i]); ok {
			run := []polyglotItem{item}
			j := i + 1
			for j < len(stmts) {
				next, ok := ip.asPolyglotStmt(stmts[j])
				if !ok {
					break
				}
				run = append(run, next)
				j++
			}
			if err := ip.runPolyglotRun(ctx, run, scope); err != nil {
				return err
			}
			i = j
			continue
		}
		if err := ip.execStmt(ctx, stmts[i], scope); err != nil {
			return err
		}
		i++
	}
	return nil
}

func (ip *Interpreter) execStmt(ctx context.Context, stmt value.Stmt, scope *env.Scope) error {
	switch s := stmt.(type) {
	case *ast.Block:
		return ip.execBlock(ctx, s.Stmts, scope.Child())

	case *ast.VarDecl:
		v, err := ip.evalExpr(ctx, s.Value, scope)
		if err != nil {
			return err
		}
		scope.Declare(s.Name, v)
		return nil

	case *ast.Assign:
		return ip.execAssign(ctx, s, scope)

	case *ast.FuncDecl:
		fn := &value.Function{Name: s.Name, Params: s.Params, Defaults: s.Defaults, Body: s.Body, Env: scope}
		scope.Declare(s.Name, value.NewFunction(fn))
		return nil

	case *ast.StructDecl:
		if err := value.ValidateStructFields(s.Fields); err != nil {
			return polyerrors.New(polyerrors.KindInternalError, "invalid struct declaration: "+err.Error(), nil)
		}
		ip.structsMu.Lock()
		ip.structs[s.TypeID] = append([]string(nil), s.Fields...)
		ip.structsMu.Unlock()
		return nil

	case *ast.ModuleUse:
		return ip.execModuleUse(s)

	case *ast.If:
		cond, err := ip.evalExpr(ctx, s.Cond, scope)
		if err != nil {
			return err
		}
		if cond.Kind() != value.KindBool {
			return polyerrors.New(polyerrors.KindRuntimeError, "if condition must be bool", nil)
		}
		if cond.Truthy() {
			return ip.execStmt(ctx, s.Then, scope.Child())
		}
		if s.Else != nil {
			return ip.execStmt(ctx, s.Else, scope.Child())
		}
		return nil

	case *ast.While:
		for {
			if ip.cancelled() {
				return context.Canceled
			}
			cond, err := ip.evalExpr(ctx, s.Cond, scope)
			if err != nil {
				return err
			}
			if cond.Kind() != value.KindBool {
				return polyerrors.New(polyerrors.KindRuntimeError, "while condition must be bool", nil)
			}
			if !cond.Truthy() {
				return nil
			}
			if err := ip.execStmt(ctx, s.Body, scope.Child()); err != nil {
				if _, ok := err.(breakSignal); ok {
					return nil
				}
				if _, ok := err.(continueSignal); ok {
					continue
				}
				return err
			}
		}

	case *ast.ForRange:
		return ip.execForRange(ctx, s, scope)

	case *ast.Match:
		return ip.execMatch(ctx, s, scope)

	case *ast.TryCatchFinally:
		return ip.execTry(ctx, s, scope)

	case *ast.Break:
		return breakSignal{}

	case *ast.Continue:
		return continueSignal{}

	case *ast.Return:
		if s.Value == nil {
			return returnSignal{Value: value.Null}
		}
		v, err := ip.evalExpr(ctx, s.Value, scope)
		if err != nil {
			return err
		}
		return returnSignal{Value: v}

	case *ast.Throw:
		v, err := ip.evalExpr(ctx, s.Value, scope)
		if err != nil {
			return err
		}
		return &throwSignal{Value: v}

	case *ast.ExprStmt:
		_, err := ip.evalExpr(ctx, s.X, scope)
		return err

	default:
		return polyerrors.InternalError("unknown statement node", nil)
	}
}

func (ip *Interpreter) execAssign(ctx context.Context, s *ast.Assign, scope *env.Scope) error {
	v, err := ip.evalExpr(ctx, s.Value, scope)
	if err != nil {
		return err
	}
	switch t := s.Target.(type) {
	case *ast.IdentTarget:
		if !scope.Set(t.Name, v) {
			return polyerrors.New(polyerrors.KindRuntimeError, (&env.ErrUndeclared{Name: t.Name}).Error(), nil)
		}
		return nil
	case *ast.IndexTarget:
		x, err := ip.evalExpr(ctx, t.X, scope)
		if err != nil {
			return err
		}
		idx, err := ip.evalExpr(ctx, t.Index, scope)
		if err != nil {
			return err
		}
		switch x.Kind() {
		case value.KindArray:
			i, ok := idx.Int()
			if !ok {
				return polyerrors.New(polyerrors.KindRuntimeError, "array index must be int", nil)
			}
			if err := x.ArraySet(int(i), v); err != nil {
				return polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
			}
			return nil
		case value.KindDict:
			k, ok := idx.Str()
			if !ok {
				return polyerrors.New(polyerrors.KindRuntimeError, "dict key must be string", nil)
			}
			if err := x.DictSet(k, v); err != nil {
				return polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
			}
			return nil
		default:
			return polyerrors.New(polyerrors.KindRuntimeError, "index assignment target must be array or dict", nil)
		}
	case *ast.FieldTarget:
		x, err := ip.evalExpr(ctx, t.X, scope)
		if err != nil {
			return err
		}
		if err := x.StructSet(t.Field, v); err != nil {
			return polyerrors.New(polyerrors.KindRuntimeError, err.Error(), nil)
		}
		return nil
	default:
		return polyerrors.InternalError("unknown assignment target", nil)
	}
}

func (ip *Interpreter) execForRange(ctx context.Context, s *ast.ForRange, scope *env.Scope) error {
	startV, err := ip.evalExpr(ctx, s.Start, scope)
	if err != nil {
		return err
	}
	endV, err := ip.evalExpr(ctx, s.End, scope)
	if err != nil {
		return err
	}
	start, ok := startV.Int()
	if !ok {
		return polyerrors.New(polyerrors.KindRuntimeError, "for-in range bounds must be int", nil)
	}
	end, ok := endV.Int()
	if !ok {
		return polyerrors.New(polyerrors.KindRuntimeError, "for-in range bounds must be int", nil)
	}
	if s.Inclusive {
		end++
	}
	for i := start; i < end; i++ {
		if ip.cancelled() {
			return context.Canceled
		}
		child := scope.Child()
		child.Declare(s.Var, value.Int(i))
		if err := ip.execStmt(ctx, s.Body, child); err != nil {
			if _, ok := err.(breakSignal); ok {
				return nil
			}
			if _, ok := err.(continueSignal); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func (ip *Interpreter) execMatch(ctx context.Context, s *ast.Match, scope *env.Scope) error {
	subject, err := ip.evalExpr(ctx, s.Subject, scope)
	if err != nil {
		return err
	}
	for _, c := range s.Cases {
		pat, err := ip.evalExpr(ctx, c.Pattern, scope)
		if err != nil {
			return err
		}
		if valuesEqual(subject, pat) {
			return ip.execStmt(ctx, c.Body, scope.Child())
		}
	}
	if s.Default != nil {
		return ip.execStmt(ctx, s.Default, scope.Child())
	}
	return nil
}

func (ip *Interpreter) execTry(ctx context.Context, s *ast.TryCatchFinally, scope *env.Scope) error {
	var result error

	func() {
		if s.Finally != nil {
			defer func() {
				if ferr := ip.execStmt(ctx, s.Finally, scope.Child()); ferr != nil {
					result = ferr
				}
			}()
		}
		tryErr := ip.execStmt(ctx, s.Try, scope.Child())
		if tryErr == nil {
			return
		}
		if _, ok := tryErr.(breakSignal); ok {
			result = tryErr
			return
		}
		if _, ok := tryErr.(continueSignal); ok {
			result = tryErr
			return
		}
		if _, ok := tryErr.(returnSignal); ok {
			result = tryErr
			return
		}
		caught, catchable := catchableValue(tryErr)
		if !catchable || s.Catch == nil {
			result = tryErr
			return
		}
		catchScope := scope.Child()
		if s.CatchName != "" {
			catchScope.Declare(s.CatchName, caught)
		}
		result = ip.execStmt(ctx, s.Catch, catchScope)
	}()

	return result
}

// catchableValue converts a runtime error into the value a `catch (name)`
// clause binds: every category except internal invariant failures is
// catchable. A *throwSignal's payload is the thrown value itself; a
// *polyerrors.ExecError is rendered as a dict carrying kind and message.
func catchableValue(err error) (value.Value, bool) {
	if t, ok := err.(*throwSignal); ok {
		return t.Value, true
	}
	if ee, ok := err.(*polyerrors.ExecError); ok {
		if !ee.Recoverable() {
			return value.Null, false
		}
		d := value.NewDict()
		_ = d.DictSet("kind", value.String(string(ee.Kind)))
		_ = d.DictSet("message", value.String(ee.Message))
		return d, true
	}
	return value.Null, false
}

func valuesEqual(a, b value.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case value.KindNull:
		return true
	case value.KindBool:
		av, _ := a.Bool()
		bv, _ := b.Bool()
		return av == bv
	case value.KindInt:
		av, _ := a.Int()
		bv, _ := b.Int()
		return av == bv
	case value.KindFloat:
		av, _ := a.Float()
		bv, _ := b.Float()
		return av == bv
	case value.KindString:
		av, _ := a.Str()
		bv, _ := b.Str()
		return av == bv
	default:
		return false
	}
}

func (ip *Interpreter) execModuleUse(s *ast.ModuleUse) error {
	if ip.registry == nil {
		return polyerrors.New(polyerrors.KindInternalError, "module use requires a configured block registry", nil)
	}
	record, found, err := ip.registry.Lookup(s.Path)
	if err != nil {
		return polyerrors.New(polyerrors.KindInternalError, "module resolution failed: "+err.Error(), err)
	}
	if !found {
		return polyerrors.New(polyerrors.KindRuntimeError, "module not found: "+s.Path, nil)
	}
	name := s.Alias
	if name == "" {
		name = s.Path
	}
	ip.global.Declare(name, value.String(record.Source))
	return nil
}

// pushCallFrame enforces the call-stack depth cap across nested function
// calls; the returned func must be deferred to pop the frame.
func (ip *Interpreter) pushCallFrame() (func(), error) {
	depth := atomic.AddInt64(&ip.callDepth, 1)
	if err := sandbox.CheckDepth("call_stack", int(depth)); err != nil {
		atomic.AddInt64(&ip.callDepth, -1)
		return nil, err
	}
	return func() { atomic.AddInt64(&ip.callDepth, -1) }, nil
}
