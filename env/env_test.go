package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadchris/polyglang/value"
)

func TestChainedLookup(t *testing.T) {
	root := New()
	root.Declare("x", value.Int(1))

	child := root.Child()
	v, ok := child.Get("x")
	require.True(t, ok)
	got, _ := v.Int()
	assert.Equal(t, int64(1), got)
}

func TestShadowing(t *testing.T) {
	root := New()
	root.Declare("x", value.Int(1))

	child := root.Child()
	child.Declare("x", value.Int(2))

	v, _ := child.Get("x")
	got, _ := v.Int()
	assert.Equal(t, int64(2), got, "child binding shadows parent")

	v, _ = root.Get("x")
	got, _ = v.Int()
	assert.Equal(t, int64(1), got, "parent binding unaffected by shadowing")
}

func TestSetBindsInnermostExistingScope(t *testing.T) {
	root := New()
	root.Declare("x", value.Int(1))
	child := root.Child()

	ok := child.Set("x", value.Int(42))
	require.True(t, ok)

	v, _ := root.Get("x")
	got, _ := v.Int()
	assert.Equal(t, int64(42), got, "Set on an inherited name mutates the scope that declared it")
}

func TestSetUndeclaredFails(t *testing.T) {
	root := New()
	ok := root.Set("never_declared", value.Int(1))
	assert.False(t, ok)
}

func TestFunctionCallCreatesChildOfCapturedEnv(t *testing.T) {
	captured := New()
	captured.Declare("y", value.Int(7))

	callFrame := captured.Child() // simulates a function call's fresh frame
	callFrame.Declare("arg", value.Int(3))

	v, ok := callFrame.Get("y")
	require.True(t, ok)
	got, _ := v.Int()
	assert.Equal(t, int64(7), got, "call frame sees lexically captured bindings")

	_, ok = captured.Get("arg")
	assert.False(t, ok, "captured scope must not see the call frame's locals")
}
