package interp

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadchris/polyglang/ast"
	"github.com/breadchris/polyglang/value"
)

func newTestInterp(out *bytes.Buffer) *Interpreter {
	return New(Options{Stdout: out})
}

func run(t *testing.T, ip *Interpreter, stmts...value.Stmt) error {
	t.Helper()
	return ip.Eval(context.Background(), stmts)
}

func TestPrintBuiltinWritesValueFollowedByNewline(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "a", Value: &ast.IntLit{Value: 1}},
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{&ast.Ident{Name: "a"}}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out.String())
}

// TestStringEscapeInterpretation checks that print("a\nb") prints a, a
// real newline, b — not the four literal characters.
func TestStringEscapeInterpretation(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{ast.Str(`a\nb`)}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out.String())
}

func TestArithmeticOverflowRaisesError(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "x", Value: &ast.IntLit{Value: 1<<63 - 1}},
		&ast.VarDecl{Name: "y", Value: &ast.Binary{Op: "+", Left: &ast.Ident{Name: "x"}, Right: &ast.IntLit{Value: 1}}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ArithmeticOverflow")
}

func TestSubtractionOverflowOnMinInt64RaisesError(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "x", Value: &ast.IntLit{Value: -4611686018427387904}},
		&ast.VarDecl{Name: "y", Value: &ast.Binary{Op: "*", Left: &ast.Ident{Name: "x"}, Right: &ast.IntLit{Value: 2}}},
		&ast.VarDecl{Name: "z", Value: &ast.Binary{Op: "-", Left: &ast.IntLit{Value: 0}, Right: &ast.Ident{Name: "y"}}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ArithmeticOverflow")
}

func TestDivisionByZeroRaisesError(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "z", Value: &ast.Binary{Op: "/", Left: &ast.IntLit{Value: 10}, Right: &ast.IntLit{Value: 0}}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DivisionByZero")
}

func TestForRangeExclusiveAndInclusive(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "sum", Value: &ast.IntLit{Value: 0}},
		&ast.ForRange{
			Var: "i",
			Start: &ast.IntLit{Value: 1},
			End: &ast.IntLit{Value: 4},
			Body: &ast.Block{Stmts: []value.Stmt{
					&ast.Assign{Target: &ast.IdentTarget{Name: "sum"}, Value: &ast.Binary{Op: "+", Left: &ast.Ident{Name: "sum"}, Right: &ast.Ident{Name: "i"}}},
			}},
		},
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{&ast.Ident{Name: "sum"}}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "6\n", out.String()) // 1+2+3, 4 excluded

	out.Reset()
	ip2 := newTestInterp(&out)
	err = run(t, ip2,
		&ast.VarDecl{Name: "sum", Value: &ast.IntLit{Value: 0}},
		&ast.ForRange{
			Var: "i", Start: &ast.IntLit{Value: 1}, End: &ast.IntLit{Value: 4}, Inclusive: true,
			Body: &ast.Block{Stmts: []value.Stmt{
					&ast.Assign{Target: &ast.IdentTarget{Name: "sum"}, Value: &ast.Binary{Op: "+", Left: &ast.Ident{Name: "sum"}, Right: &ast.Ident{Name: "i"}}},
			}},
		},
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{&ast.Ident{Name: "sum"}}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "10\n", out.String()) // 1+2+3+4, 4 included
}

func TestPipelineOperatorEquivalentToCall(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	// let double = fn(x) { return x * 2 }
	// print(3 |> double)
	err := run(t, ip,
		&ast.VarDecl{Name: "double", Value: &ast.FuncLit{
				Params: []value.Param{{Name: "x"}},
				Body: &ast.Block{Stmts: []value.Stmt{
						&ast.Return{Value: &ast.Binary{Op: "*", Left: &ast.Ident{Name: "x"}, Right: &ast.IntLit{Value: 2}}},
				}},
		}},
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{
					&ast.Pipeline{Left: &ast.IntLit{Value: 3}, Right: &ast.Ident{Name: "double"}},
		}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "6\n", out.String())
}

func TestTryCatchFinallyRunsFinallyAndBindsCaughtValue(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.TryCatchFinally{
			Try: &ast.Block{Stmts: []value.Stmt{
					&ast.Throw{Value: ast.Str("boom")},
			}},
			CatchName: "e",
			Catch: &ast.Block{Stmts: []value.Stmt{
					&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{&ast.Ident{Name: "e"}}}},
			}},
			Finally: &ast.Block{Stmts: []value.Stmt{
					&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{ast.Str("cleanup")}}},
			}},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "boom\ncleanup\n", out.String())
}

func TestStructFieldAccessRejectsUnknownField(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.StructDecl{TypeID: "Point", Fields: []string{"x", "y"}},
		&ast.VarDecl{Name: "p", Value: &ast.StructLit{
				TypeID: "Point", Fields: []string{"x", "y"},
				Values: []value.Expr{&ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}},
		}},
		&ast.ExprStmt{X: &ast.Field{X: &ast.Ident{Name: "p"}, Name: "z"}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestDictMissingKeyIsErrorNotNull(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "d", Value: &ast.DictLit{Keys: []string{"a"}, Values: []value.Expr{&ast.IntLit{Value: 1}}}},
		&ast.ExprStmt{X: &ast.Index{X: &ast.Ident{Name: "d"}, Idx: ast.Str("missing")}},
	)
	require.Error(t, err)
}

func TestFunctionDefaultParameterResolution(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "greet", Value: &ast.FuncLit{
				Params: []value.Param{{Name: "name"}},
				Defaults: []value.Expr{ast.Str("world")},
				Body: &ast.Block{Stmts: []value.Stmt{
						&ast.Return{Value: &ast.Binary{Op: "+", Left: ast.Str("hello "), Right: &ast.Ident{Name: "name"}}},
				}},
		}},
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{
					&ast.Call{Callee: &ast.Ident{Name: "greet"}, Args: nil},
		}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out.String())
}

func TestAppendAndLenBuiltins(t *testing.T) {
	var out bytes.Buffer
	ip := newTestInterp(&out)

	err := run(t, ip,
		&ast.VarDecl{Name: "xs", Value: &ast.ArrayLit{Elements: []value.Expr{&ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}}}},
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "append"}, Args: []value.Expr{&ast.Ident{Name: "xs"}, &ast.IntLit{Value: 3}}}},
		&ast.ExprStmt{X: &ast.Call{Callee: &ast.Ident{Name: "print"}, Args: []value.Expr{
					&ast.Call{Callee: &ast.Ident{Name: "len"}, Args: []value.Expr{&ast.Ident{Name: "xs"}}},
		}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out.String())
}
