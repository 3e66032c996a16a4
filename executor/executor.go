// Package executor implements the six polyglot-block executors: a
// common prepare/execute/shutdown lifecycle realized as a subprocess
// core (Python, JavaScript, Shell) and a compiled-WASM core (C++, Rust,
// C#).
package executor

import (
	"context"
	"time"

	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/marshal"
	"github.com/breadchris/polyglang/sandbox"
)

// Language enumerates the six supported foreign languages.
type Language string

const (
	LangPython Language = "python"
	LangJavaScript Language = "javascript"
	LangShell Language = "shell"
	LangCpp Language = "cpp"
	LangRust Language = "rust"
	LangCSharp Language = "csharp"
)

// PreparedCode is the output of prepare: source that has passed
// syntactic/semantic checks (and may already be the cached artifact).
type PreparedCode struct {
	Language string
	CanonicalSource string
	LibraryPath string // compiled languages only
	Symbol string // compiled languages only
	Handle interface{} // interpreted languages only
}

// Executor is the common contract every per-language backend satisfies.
// An Executor instance is confined to one goroutine for the duration of
// a single Execute call; the scheduler is responsible for handing out
// one instance per worker rather than sharing one across goroutines.
type Executor interface {
	// Prepare performs syntactic/semantic preparation without running
	// user code. bindings names the host variables that will be bound as
	// globals at execute time.
	Prepare(ctx context.Context, source string, bindings []string) (PreparedCode, error)

	// Execute runs prepared to completion or to deadline, returning the
	// block's foreign-side return value.
	Execute(ctx context.Context, prepared PreparedCode, inputs map[string]marshal.Foreign, deadline time.Time) (marshal.Foreign, error)

	// Shutdown best-effort releases per-executor resources (subprocess
	// handles, WASM instances, embedded interpreter state).
	Shutdown() error
}

// New constructs the Executor for lang. Each call returns a fresh
// instance; instances are never shared across goroutines.
func New(lang Language, sandboxGuard SandboxChecker) (Executor, error) {
	switch lang {
	case LangPython:
		return newSubprocessExecutor(string(lang), pythonWrapper, sandboxGuard), nil
	case LangJavaScript:
		return newSubprocessExecutor(string(lang), javascriptWrapper, sandboxGuard), nil
	case LangShell:
		return newShellExecutor(sandboxGuard), nil
	case LangCpp:
		return newCompiledExecutor(string(lang), cppWrapper, sandboxGuard), nil
	case LangRust:
		return newCompiledExecutor(string(lang), rustWrapper, sandboxGuard), nil
	case LangCSharp:
		return newCompiledExecutor(string(lang), csharpWrapper, sandboxGuard), nil
	default:
		return nil, polyerrors.InternalError("unknown executor language: "+string(lang), nil)
	}
}

// SandboxChecker is the subset of *sandbox.Sandbox executors need: the
// ability to ask permission before spawning a subprocess or touching a
// temp file.
type SandboxChecker interface {
	Check(op sandbox.Operation, target string) error
}
