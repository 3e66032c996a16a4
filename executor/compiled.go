package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	wasmer "github.com/wasmerio/wasmer-go/wasmer"

	"github.com/benbjohnson/clock"

	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/marshal"
	"github.com/breadchris/polyglang/sandbox"
	"github.com/breadchris/polyglang/value"
)

// entryWrapperFunc synthesizes the extern "C" ABI wrapper around a
// compiled-language source fragment: it receives marshalled arguments
// through a generated buffer and writes its single return value to a
// buffer the host owns, rather than being expression-oriented like the
// interpreted languages.
type entryWrapperFunc func(source string) string

// compiledExecutor is the shared core for C++, Rust and C#: the wrapped
// source is compiled once per fingerprint to a WASM module (by the code
// cache's BuildFunc, not by this type — compiledExecutor only runs an
// already-built module) and executed inside a resource-capped wasmer-go
// instance, mirroring the cache's compile-once/run-sandboxed shape.
type compiledExecutor struct {
	language string
	wrap     entryWrapperFunc
	sandbox  SandboxChecker
	clock    clock.Clock
}

func newCompiledExecutor(language string, wrap entryWrapperFunc, sb SandboxChecker) *compiledExecutor {
	return &compiledExecutor{language: language, wrap: wrap, sandbox: sb, clock: defaultClock}
}

// WithClock overrides the executor's clock, used by tests to simulate a
// deadline elapsing without sleeping for it.
func (e *compiledExecutor) WithClock(clk clock.Clock) *compiledExecutor {
	e.clock = clk
	return e
}

// Prepare synthesizes the ABI wrapper around source (if source is not
// already a complete program) and hands back the canonical source the
// code cache will fingerprint and, on miss, compile to a WASM module.
// compiledExecutor itself never invokes a toolchain; that is the code
// cache's BuildFunc's job (kept out of this package to avoid coupling the
// executor to a specific cpp/rustc/csc invocation strategy).
func (e *compiledExecutor) Prepare(ctx context.Context, source string, bindings []string) (PreparedCode, error) {
	if err := sandbox.CheckInputSize("block_source", len(source)); err != nil {
		return PreparedCode{}, err
	}
	wrapped := e.wrap(source)
	return PreparedCode{Language: e.language, CanonicalSource: wrapped}, nil
}

// Execute loads prepared.LibraryPath as a WASM module (populated by the
// code cache's BuildFunc on a prior compile) and invokes its exported
// entry symbol with the marshalled inputs encoded via the ABI wire
// format. Timeouts are enforced by racing the call against a deadline
// timer, since WASM execution in-process has no OS-level kill signal to
// send.
func (e *compiledExecutor) Execute(ctx context.Context, prepared PreparedCode, inputs map[string]marshal.Foreign, deadline time.Time) (marshal.Foreign, error) {
	if e.sandbox != nil {
		if err := e.sandbox.Check(sandbox.OpBlockCall, e.language); err != nil {
			return marshal.Foreign{}, err
		}
	}
	if prepared.LibraryPath == "" {
		return marshal.Foreign{}, polyerrors.InternalError("compiled executor invoked without a built artifact", nil)
	}

	wasmBytes, err := os.ReadFile(prepared.LibraryPath)
	if err != nil {
		return marshal.Foreign{}, polyerrors.LinkError([]string{prepared.Symbol})
	}

	argBuf := encodeArgs(inputs)

	type result struct {
		val marshal.Foreign
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		v, runErr := e.invoke(wasmBytes, prepared.Symbol, argBuf)
		done <- result{val: v, err: runErr}
	}()

	clk := e.clock
	if clk == nil {
		clk = defaultClock
	}
	d := deadline.Sub(clk.Now())
	if d < 0 {
		d = 0
	}
	timer := clk.Timer(d)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return marshal.Foreign{}, polyerrors.RuntimeError(e.language, r.err.Error(), nil)
		}
		return r.val, nil
	case <-timer.C:
		return marshal.Foreign{}, polyerrors.Timeout(e.language, time.Since(start).Milliseconds())
	case <-ctx.Done():
		return marshal.Foreign{}, polyerrors.Timeout(e.language, time.Since(start).Milliseconds())
	}
}

// invoke instantiates module and calls its exported entry symbol,
// translating a wasmer trap into a plain error (the caller wraps it as
// RuntimeError). The engine and store use wasmer's defaults: the
// sandbox's memory and CPU caps are not applied to the instance, and only
// Execute's wall-clock deadline bounds a call.
func (e *compiledExecutor) invoke(wasmBytes []byte, symbol string, argBuf []byte) (marshal.Foreign, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	module, err := wasmer.NewModule(store, wasmBytes)
	if err != nil {
		return marshal.Foreign{}, fmt.Errorf("module load: %w", err)
	}

	importObject := wasmer.NewImportObject()
	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return marshal.Foreign{}, fmt.Errorf("instantiate: %w", err)
	}
	defer instance.Close()

	entry, err := instance.Exports.GetFunction(symbol)
	if err != nil {
		return marshal.Foreign{}, fmt.Errorf("missing entry symbol %q: %w", symbol, err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return marshal.Foreign{}, fmt.Errorf("module exports no linear memory: %w", err)
	}
	argPtr, err := writeToGuestMemory(mem, argBuf)
	if err != nil {
		return marshal.Foreign{}, err
	}

	resultPtr, err := entry(argPtr, len(argBuf))
	if err != nil {
		return marshal.Foreign{}, fmt.Errorf("trap: %w", err)
	}

	retOffset, ok := resultPtr.(int32)
	if !ok {
		return marshal.Foreign{}, fmt.Errorf("entry symbol returned unexpected type %T", resultPtr)
	}
	resultBuf := readGuestMemory(mem, retOffset)
	f, _, err := marshal.Decode(resultBuf)
	if err != nil {
		return marshal.Foreign{}, err
	}
	return f, nil
}

func (e *compiledExecutor) Shutdown() error { return nil }

func encodeArgs(inputs map[string]marshal.Foreign) []byte {
	pairs := make([]marshal.ForeignPair, 0, len(inputs))
	for k, v := range inputs {
		pairs = append(pairs, marshal.ForeignPair{Key: k, Value: v})
	}
	return marshal.Encode(marshal.Foreign{Kind: value.KindDict, Pairs: pairs})
}

func writeToGuestMemory(mem *wasmer.Memory, data []byte) (int32, error) {
	view := mem.Data()
	if len(data) > len(view) {
		return 0, fmt.Errorf("argument buffer larger than guest memory")
	}
	copy(view, data)
	return 0, nil
}

func readGuestMemory(mem *wasmer.Memory, offset int32) []byte {
	view := mem.Data()
	if int(offset) >= len(view) {
		return nil
	}
	return view[offset:]
}
