package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayReferenceSemantics(t *testing.T) {
	arr := NewArray([]Value{Int(1), Int(2), Int(3)})
	alias := arr

	require.NoError(t, arr.ArraySet(0, Int(99)))

	v, err := alias.ArrayGet(0)
	require.NoError(t, err)
	got, _ := v.Int()
	assert.Equal(t, int64(99), got, "mutation through one alias must be visible through another")
}

func TestDictMissingKeyIsError(t *testing.T) {
	d := NewDict()
	require.NoError(t, d.DictSet("a", Int(1)))

	_, err := d.DictGet("missing")
	assert.Error(t, err, "missing key must be an error, not Null")

	v, err := d.DictGet("a")
	require.NoError(t, err)
	got, _ := v.Int()
	assert.Equal(t, int64(1), got)
}

func TestDictInsertionOrderPreserved(t *testing.T) {
	d := NewDict()
	require.NoError(t, d.DictSet("z", Int(1)))
	require.NoError(t, d.DictSet("a", Int(2)))
	require.NoError(t, d.DictSet("z", Int(3))) // re-set must not reorder

	assert.Equal(t, []string{"z", "a"}, d.DictKeys())
}

func TestStructFixedFieldSet(t *testing.T) {
	s := NewStruct("Point", []string{"x", "y"})
	require.NoError(t, s.StructSet("x", Int(1)))

	err := s.StructSet("z", Int(1))
	assert.Error(t, err, "unknown field write must error")

	_, err = s.StructGet("z")
	assert.Error(t, err, "unknown field read must error")
}

func TestValidateStructFieldsRejectsDuplicates(t *testing.T) {
	err := ValidateStructFields([]string{"x", "y", "x"})
	assert.Error(t, err)

	err = ValidateStructFields([]string{"x", "y"})
	assert.NoError(t, err)
}

func TestSnapshotDetachesMutation(t *testing.T) {
	arr := NewArray([]Value{Int(1)})
	snap := Snapshot(arr)

	require.NoError(t, arr.ArraySet(0, Int(2)))

	v, err := snap.ArrayGet(0)
	require.NoError(t, err)
	got, _ := v.Int()
	assert.Equal(t, int64(1), got, "snapshot must be independent of the source after copy")
}

func TestSnapshotPreservesCycles(t *testing.T) {
	d := NewDict()
	s := NewStruct("Node", []string{"self"})
	require.NoError(t, d.DictSet("s", s))
	require.NoError(t, s.StructSet("self", d)) // cycle: s.self -> d -> s

	snapDict := Snapshot(d)

	inner, err := snapDict.DictGet("s")
	require.NoError(t, err)
	back, err := inner.StructGet("self")
	require.NoError(t, err)

	// back must be the *copied* dict, not the original, and the cycle
	// must still close on the copy.
	backInner, err := back.DictGet("s")
	require.NoError(t, err)
	typeID, _ := backInner.StructTypeID()
	assert.Equal(t, "Node", typeID)
}

func TestOverflowCheckedArithmetic(t *testing.T) {
	_, err := AddInt(9223372036854775807, 1)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	r, err := AddInt(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r)
}

func TestSubIntOverflowOnMinInt64Subtrahend(t *testing.T) {
	// Negating math.MinInt64 overflows back to itself, so SubInt must not
	// be implemented as AddInt(a, -b): that would silently compute
	// AddInt(a, math.MinInt64) instead of detecting the overflow.
	_, err := SubInt(0, math.MinInt64)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	r, err := SubInt(5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r)
}

func TestDivisionByZero(t *testing.T) {
	_, err := DivInt(10, 0)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}
