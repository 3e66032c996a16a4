package interp

import (
	"context"
	"fmt"
	"time"

	"github.com/breadchris/polyglang/analyzer"
	"github.com/breadchris/polyglang/ast"
	"github.com/breadchris/polyglang/cache"
	"github.com/breadchris/polyglang/env"
	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/executor"
	"github.com/breadchris/polyglang/marshal"
	"github.com/breadchris/polyglang/sandbox"
	"github.com/breadchris/polyglang/scheduler"
	"github.com/breadchris/polyglang/value"
)

// polyglotItem pairs one polyglot-statement's assignment target (if any)
// with its expression, the unit the dependency analyzer reasons about.
type polyglotItem struct {
	expr    *ast.PolyglotExpr
	target  string // "" if the block is in statement position (value discarded)
	declare bool   // true for `let target = <<...>>`, false for plain assignment
}

// asPolyglotStmt recognizes the three statement shapes that count as a
// dependency block: `let x = <<...>>`, `x = <<...>>`, and a bare
// `<<...>>` expression statement.
func (ip *Interpreter) asPolyglotStmt(stmt value.Stmt) (polyglotItem, bool) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		if pe, ok := s.Value.(*ast.PolyglotExpr); ok {
			return polyglotItem{expr: pe, target: s.Name, declare: true}, true
		}
	case *ast.Assign:
		if pe, ok := s.Value.(*ast.PolyglotExpr); ok {
			if it, ok := s.Target.(*ast.IdentTarget); ok {
				return polyglotItem{expr: pe, target: it.Name}, true
			}
		}
	case *ast.ExprStmt:
		if pe, ok := s.X.(*ast.PolyglotExpr); ok {
			return polyglotItem{expr: pe}, true
		}
	}
	return polyglotItem{}, false
}

// runPolyglotRun executes a maximal run of consecutive polyglot
// statements through the dependency analyzer and parallel scheduler: it
// builds one DependencyBlock per item, partitions them into groups, and
// runs each group, merging successful writes back into scope in source
// order. A single-item run still goes through this path — the
// scheduler's own single-block bypass keeps that cheap — so grouping
// behavior is identical regardless of run length.
func (ip *Interpreter) runPolyglotRun(ctx context.Context, items []polyglotItem, scope *env.Scope) error {
	blocks := make([]analyzer.DependencyBlock, len(items))
	for i, it := range items {
		reads := make(map[string]bool, len(it.expr.BoundVars))
		for _, n := range it.expr.BoundVars {
			reads[n] = true
		}
		writes := map[string]bool{}
		if it.target != "" {
			writes[it.target] = true
		}
		blocks[i] = analyzer.DependencyBlock{Index: i, IsPolyglot: true, Determinate: true, Reads: reads, Writes: writes}

		// A `let` target must exist before the scheduler's merge step can
		// assign it (env.Scope.Set only binds an already-declared name);
		// a plain assignment target must already exist, which we check
		// here rather than silently letting the merge drop the write.
		if it.target == "" {
			continue
		}
		if it.declare {
			scope.Declare(it.target, value.Null)
		} else if !scope.Has(it.target) {
			return polyerrors.New(polyerrors.KindRuntimeError, (&env.ErrUndeclared{Name: it.target}).Error(), nil)
		}
	}

	groups := analyzer.Analyze(blocks, ip.window)
	deadline := ip.deadline()

	logger := ip.logger.With("component", "scheduler")
	logger.Debug("dispatching polyglot groups", "groups", len(groups), "blocks", len(items))

	sched := scheduler.New(scope, ip.blockRunner(items, scope))
	if err := sched.RunGroups(ctx, groups, deadline); err != nil {
		return err
	}
	return nil
}

// blockRunner adapts one DependencyBlock's execution to scheduler.BlockRunner:
// it looks up the corresponding polyglotItem by index and runs its
// polyglot expression against the scheduler-provided snapshot.
func (ip *Interpreter) blockRunner(items []polyglotItem, scope *env.Scope) scheduler.BlockRunner {
	return func(ctx context.Context, block analyzer.DependencyBlock, snapshot map[string]value.Value, deadline time.Time) (map[string]value.Value, error) {
		item := items[block.Index]
		lookup := func(name string) (value.Value, bool) {
			v, ok := snapshot[name]
			return v, ok
		}
		result, err := ip.runPolyglot(ctx, item.expr, lookup, deadline)
		if err != nil {
			return nil, err
		}
		if item.target == "" {
			return map[string]value.Value{}, nil
		}
		return map[string]value.Value{item.target: result}, nil
	}
}

// execPolyglotExpr evaluates a polyglot block that appears nested inside
// a larger expression (not as the direct RHS of a statement), so it
// never participates in analyzer grouping and simply runs inline against
// the live scope.
func (ip *Interpreter) execPolyglotExpr(ctx context.Context, pe *ast.PolyglotExpr, scope *env.Scope, deadline time.Time) (value.Value, error) {
	return ip.runPolyglot(ctx, pe, scope.Get, deadline)
}

// runPolyglot is the actual polyglot execution pipeline: sandbox check,
// code-cache get-or-build, marshal bindings to the foreign
// representation, execute, marshal the result back, audit. lookup
// resolves a bound variable name to its current value, whether that is a
// live scope (inline evaluation) or an isolated snapshot (scheduled
// parallel evaluation) — the pipeline itself does not care which.
func (ip *Interpreter) runPolyglot(ctx context.Context, pe *ast.PolyglotExpr, lookup func(string) (value.Value, bool), deadline time.Time) (value.Value, error) {
	log := ip.logger.With("component", "executor", "language", pe.Language, "location", pe.Location)

	if err := ip.sandbox.Check(sandbox.OpBlockLoad, pe.Language); err != nil {
		return value.Null, err
	}

	ex, err := executor.New(executor.Language(pe.Language), ip.sandbox)
	if err != nil {
		return value.Null, err
	}
	defer ex.Shutdown()

	var artifact cache.Artifact
	if ip.cache != nil {
		artifact, err = ip.cache.GetOrBuild(ctx, pe.Language, pe.Source, ip.buildFunc(ex, pe.BoundVars))
	} else {
		var prepared executor.PreparedCode
		prepared, err = ex.Prepare(ctx, cache.Canonicalize(pe.Source), pe.BoundVars)
		if err == nil {
			artifact = artifactFromPrepared(pe.Language, prepared)
		}
	}
	if err != nil {
		log.Error("block preparation failed", "err", err)
		return value.Null, err
	}

	prepared := ip.preparedFromArtifact(pe, artifact)

	foreignInputs := make(map[string]marshal.Foreign, len(pe.BoundVars))
	for _, name := range pe.BoundVars {
		v, ok := lookup(name)
		if !ok {
			v = value.Null
		}
		f, err := marshal.ToForeignValue(v, pe.Language)
		if err != nil {
			return value.Null, err
		}
		foreignInputs[name] = f
	}

	start := time.Now()
	foreignResult, err := ex.Execute(ctx, prepared, foreignInputs, deadline)
	elapsed := time.Since(start)
	if err != nil {
		ip.auditRecord("block.error", map[string]interface{}{
			"language": pe.Language,
			"location": pe.Location,
			"error":    err.Error(),
		})
		log.Warn("block execution failed", "err", err, "elapsed_ms", elapsed.Milliseconds())
		return value.Null, err
	}

	ip.auditRecord("block.execute", map[string]interface{}{
		"language":   pe.Language,
		"location":   pe.Location,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	log.Debug("block executed", "elapsed_ms", elapsed.Milliseconds())

	hostVal, err := marshal.FromForeignValue(foreignResult)
	if err != nil {
		return value.Null, err
	}
	return hostVal, nil
}

// buildFunc adapts the executor's Prepare step, plus (for compiled
// languages) a real WASM compile, to the code cache's BuildFunc
// contract.
func (ip *Interpreter) buildFunc(ex executor.Executor, boundVars []string) cache.BuildFunc {
	return func(ctx context.Context, language, canonicalSource string) (cache.Artifact, error) {
		prepared, err := ex.Prepare(ctx, canonicalSource, boundVars)
		if err != nil {
			return cache.Artifact{}, err
		}
		switch executor.Language(language) {
		case executor.LangCpp, executor.LangRust, executor.LangCSharp:
			libPath, symbol, err := ip.tools.compile(ctx, language, prepared.CanonicalSource)
			if err != nil {
				return cache.Artifact{}, polyerrors.CompileError(language, err.Error())
			}
			return cache.Artifact{Language: language, Kind: cache.KindCompiled, LibraryPath: libPath, Symbol: symbol}, nil
		default:
			return artifactFromPrepared(language, prepared), nil
		}
	}
}

func artifactFromPrepared(language string, prepared executor.PreparedCode) cache.Artifact {
	return cache.Artifact{Language: language, Kind: cache.KindInterpreted, Handle: prepared.CanonicalSource, ProducingExecutor: fmt.Sprintf("%s-executor", language)}
}

func (ip *Interpreter) preparedFromArtifact(pe *ast.PolyglotExpr, artifact cache.Artifact) executor.PreparedCode {
	if artifact.Kind == cache.KindCompiled {
		return executor.PreparedCode{Language: pe.Language, LibraryPath: artifact.LibraryPath, Symbol: artifact.Symbol}
	}
	source, _ := artifact.Handle.(string)
	if source == "" {
		source = pe.Source
	}
	return executor.PreparedCode{Language: pe.Language, CanonicalSource: source}
}
