package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breadchris/polyglang/analyzer"
	"github.com/breadchris/polyglang/value"
)

type memEnv struct {
	mu   sync.Mutex
	vars map[string]value.Value
}

func newMemEnv() *memEnv { return &memEnv{vars: map[string]value.Value{}} }

func (e *memEnv) Get(name string) (value.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[name]
	return v, ok
}

func (e *memEnv) Set(name string, v value.Value) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[name] = v
	return true
}

func blockRW(idx int, reads, writes []string) analyzer.DependencyBlock {
	r := map[string]bool{}
	for _, k := range reads {
		r[k] = true
	}
	w := map[string]bool{}
	for _, k := range writes {
		w[k] = true
	}
	return analyzer.DependencyBlock{Index: idx, IsPolyglot: true, Determinate: true, Reads: r, Writes: w}
}

func TestRunGroupSingleBlockBypassesParallelPath(t *testing.T) {
	env := newMemEnv()
	env.Set("x", value.Int(1))
	var ran int32

	s := New(env, func(ctx context.Context, b analyzer.DependencyBlock, snap map[string]value.Value, deadline time.Time) (map[string]value.Value, error) {
		atomic.AddInt32(&ran, 1)
		x, _ := snap["x"].Int()
		return map[string]value.Value{"y": value.Int(x + 1)}, nil
	})

	group := analyzer.Group{Blocks: []analyzer.DependencyBlock{blockRW(0, []string{"x"}, []string{"y"})}}
	require.NoError(t, s.RunGroup(context.Background(), group, time.Now().Add(time.Second)))

	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	y, ok := env.Get("y")
	require.True(t, ok)
	yi, _ := y.Int()
	assert.Equal(t, int64(2), yi)
}

// TestRunGroupParallelMergeIsSourceOrderNotCompletionOrder proves the
// merge step applies results in block-source order regardless of which
// worker finished first: every block in this group writes the same key,
// so the final value must be the last block's, even though it is made to
// finish executing before the others.
func TestRunGroupParallelMergeIsSourceOrderNotCompletionOrder(t *testing.T) {
	env := newMemEnv()

	s := New(env, func(ctx context.Context, b analyzer.DependencyBlock, snap map[string]value.Value, deadline time.Time) (map[string]value.Value, error) {
		time.Sleep(time.Duration(2-b.Index) * 15 * time.Millisecond) // later blocks finish first
		return map[string]value.Value{"shared": value.Int(int64(b.Index))}, nil
	})

	blocks := []analyzer.DependencyBlock{
		blockRW(0, nil, []string{"shared"}),
		blockRW(1, nil, []string{"shared"}),
		blockRW(2, nil, []string{"shared"}),
	}
	group := analyzer.Group{Blocks: blocks}
	require.NoError(t, s.RunGroup(context.Background(), group, time.Now().Add(time.Second)))

	v, ok := env.Get("shared")
	require.True(t, ok)
	vi, _ := v.Int()
	assert.Equal(t, int64(2), vi, "merge must apply in source order, so the last block's write wins")
}

func TestRunGroupFailsEntirelyIfAnyBlockFails(t *testing.T) {
	env := newMemEnv()
	wantErr := errors.New("boom")

	s := New(env, func(ctx context.Context, b analyzer.DependencyBlock, snap map[string]value.Value, deadline time.Time) (map[string]value.Value, error) {
		if b.Index == 1 {
			return nil, wantErr
		}
		return map[string]value.Value{"ok": value.Bool(true)}, nil
	})

	blocks := []analyzer.DependencyBlock{
		blockRW(0, nil, []string{"a"}),
		blockRW(1, nil, []string{"b"}),
	}
	err := s.RunGroup(context.Background(), analyzer.Group{Blocks: blocks}, time.Now().Add(time.Second))
	require.Error(t, err)
}

func TestTakeSnapshotDeepCopiesReadSet(t *testing.T) {
	env := newMemEnv()
	arr := value.NewArray([]value.Value{value.Int(1), value.Int(2)})
	env.Set("a", arr)

	s := New(env, nil)
	block := blockRW(0, []string{"a"}, nil)
	snap := s.takeSnapshot(block)

	require.NoError(t, snap["a"].ArraySet(0, value.Int(99)))
	original, _ := env.Get("a")
	v, err := original.ArrayGet(0)
	require.NoError(t, err)
	vi, _ := v.Int()
	assert.Equal(t, int64(1), vi, "mutating the snapshot must not affect the host environment's value")
}

func TestMaxWorkersAtLeastOne(t *testing.T) {
	assert.GreaterOrEqual(t, MaxWorkers(), 1)
}
