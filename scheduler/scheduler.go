// Package scheduler implements the parallel block scheduler: it executes
// one dependency-analyzer group at a time, dispatching independent blocks
// onto a worker pool under a snapshot that isolates them from each
// other's mutation, then merges their writes back into the host
// environment sequentially in source order.
package scheduler

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/breadchris/polyglang/analyzer"
	"github.com/breadchris/polyglang/value"
)

// HostEnv is the subset of the host environment the scheduler needs to
// read from and write back into (env.Scope satisfies this).
type HostEnv interface {
	Get(name string) (value.Value, bool)
	Set(name string, v value.Value) bool
}

// BlockRunner executes one block given its isolated snapshot (its read
// set, deep-copied, plus empty slots for its write set) and returns the
// final values for every name in its write set. It is supplied by the
// interpreter, which knows how to route a block to its executor,
// marshaller and sandbox; the scheduler itself is language-agnostic.
type BlockRunner func(ctx context.Context, block analyzer.DependencyBlock, snapshot map[string]value.Value, deadline time.Time) (map[string]value.Value, error)

// MaxWorkers caps the worker pool at hardware concurrency.
func MaxWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// Scheduler runs dependency-analyzer groups against a host environment.
type Scheduler struct {
	env        HostEnv
	run        BlockRunner
	maxWorkers int
}

func New(env HostEnv, run BlockRunner) *Scheduler {
	return &Scheduler{env: env, run: run, maxWorkers: MaxWorkers()}
}

// RunGroup executes every block in group, merging successful writes back
// into the host environment in source order, and returns the first error
// encountered. A single-block group bypasses the thread pool and runs
// inline on the calling goroutine; it still receives a deep-copied
// snapshot of its read set, like a pooled block.
func (s *Scheduler) RunGroup(ctx context.Context, group analyzer.Group, deadline time.Time) error {
	if len(group.Blocks) == 0 {
		return nil
	}
	if len(group.Blocks) == 1 {
		return s.runInline(ctx, group.Blocks[0], deadline)
	}
	return s.runParallel(ctx, group.Blocks, deadline)
}

func (s *Scheduler) runInline(ctx context.Context, block analyzer.DependencyBlock, deadline time.Time) error {
	snapshot := s.takeSnapshot(block)
	writes, err := s.run(ctx, block, snapshot, deadline)
	if err != nil {
		return err
	}
	s.mergeWrites(block, writes)
	return nil
}

// runParallel dispatches blocks onto an errgroup-backed worker pool
// (bounded to MaxWorkers via SetLimit), cancelling in-flight workers as
// soon as any block fails, then merges successful results back
// sequentially in source order.
func (s *Scheduler) runParallel(ctx context.Context, blocks []analyzer.DependencyBlock, deadline time.Time) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)

	results := make([]map[string]value.Value, len(blocks))
	for i, block := range blocks {
		i, block := i, block
		snapshot := s.takeSnapshot(block)
		g.Go(func() error {
			writes, err := s.run(gctx, block, snapshot, deadline)
			if err != nil {
				return err
			}
			results[i] = writes
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i, block := range blocks {
		s.mergeWrites(block, results[i])
	}
	return nil
}

// takeSnapshot builds the isolated view a worker sees: a deep copy of
// every value in the block's read set, plus a Null placeholder for every
// name in its write set not also read.
func (s *Scheduler) takeSnapshot(block analyzer.DependencyBlock) map[string]value.Value {
	snap := make(map[string]value.Value, len(block.Reads)+len(block.Writes))
	for name := range block.Reads {
		if v, ok := s.env.Get(name); ok {
			snap[name] = value.Snapshot(v)
		} else {
			snap[name] = value.Null
		}
	}
	for name := range block.Writes {
		if _, already := snap[name]; !already {
			snap[name] = value.Null
		}
	}
	return snap
}

func (s *Scheduler) mergeWrites(block analyzer.DependencyBlock, writes map[string]value.Value) {
	for name := range block.Writes {
		if v, ok := writes[name]; ok {
			s.env.Set(name, v)
		}
	}
}

// RunGroups runs every group in order, honoring each group's DependsOn by
// construction (the caller is expected to pass groups in the order
// Analyze produced them, which already reflects the topological partition
// — DependsOn is informational for diagnostics/tracing, not re-checked
// here since sequential iteration already satisfies it).
func (s *Scheduler) RunGroups(ctx context.Context, groups []analyzer.Group, deadline time.Time) error {
	for _, group := range groups {
		if err := s.RunGroup(ctx, group, deadline); err != nil {
			return err
		}
	}
	return nil
}
