// Package interp implements the tree-walking interpreter: the
// statement/expression evaluator, and the orchestration that routes
// every polyglot block through the dependency analyzer, parallel
// scheduler, per-language executor, marshaller, sandbox and audit log.
//
// Its Interpreter type is styled directly on a classic
// Interpreter/Eval/EvalWithContext/Panic architecture: a single
// evaluation entry point, a cancellation channel closed by stop, and
// host panics recovered into a typed RuntimePanic with a filtered
// stack, rather than crashing the process.
package interp

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	log "charm.land/log/v2"

	"github.com/breadchris/polyglang/analyzer"
	"github.com/breadchris/polyglang/audit"
	"github.com/breadchris/polyglang/cache"
	"github.com/breadchris/polyglang/env"
	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/registry"
	"github.com/breadchris/polyglang/sandbox"
	"github.com/breadchris/polyglang/value"
)

// Options configures a new Interpreter. Every field is optional; zero
// values fall back to a usable default so unit tests can construct a
// minimal Interpreter with just a Sandbox.
type Options struct {
	Sandbox  *sandbox.Sandbox
	Audit    *audit.Log
	Registry registry.BlockRegistry
	Cache    *cache.Cache
	Logger   *log.Logger

	// Window bounds the dependency analyzer's conservative-default
	// search; 0 selects analyzer.DefaultWindow.
	Window int

	// Toolchains overrides the compiler binaries used to build compiled-
	// language polyglot blocks to WASM.
	Toolchains ToolchainConfig

	// Stdout receives output from the `print` builtin. Defaults to
	// os.Stdout; tests typically pass a bytes.Buffer.
	Stdout io.Writer
}

// Interpreter evaluates a program's statement tree against a global
// environment, orchestrating the polyglot execution substrate for any
// compound block containing polyglot fragments.
type Interpreter struct {
	global *env.Scope

	sandbox  *sandbox.Sandbox
	audit    *audit.Log
	registry registry.BlockRegistry
	cache    *cache.Cache
	window   int
	tools    ToolchainConfig

	logger *log.Logger

	structsMu sync.RWMutex
	structs   map[string][]string // declared struct type -> field order
	callDepth int64               // active function-call nesting

	// id/done mirror a generation-counter cancellation mechanism: stop
	// bumps id and closes done, EvalWithContext's watcher goroutine
	// reacts to ctx.Done() by calling stop so an in-flight Eval unwinds
	// at its next check point.
	mu   sync.Mutex
	id   uint64
	done chan struct{}
}

// New constructs an Interpreter ready to evaluate statements against a
// fresh global scope.
func New(opts Options) *Interpreter {
	sb := opts.Sandbox
	if sb == nil {
		sb = sandbox.New(sandbox.PresetConfig(sandbox.Standard).WithDefaultPaths())
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	window := opts.Window
	if window <= 0 {
		window = analyzer.DefaultWindow
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	ip := &Interpreter{
		global:   env.New(),
		sandbox:  sb,
		audit:    opts.Audit,
		registry: opts.Registry,
		cache:    opts.Cache,
		window:   window,
		tools:    opts.Toolchains.withDefaults(),
		logger:   logger,
		structs:  map[string][]string{},
		done:     make(chan struct{}),
	}
	installBuiltinsTo(ip.global, stdout)
	return ip
}

// Global returns the interpreter's top-level scope, e.g. for tests that
// want to seed or inspect bindings directly.
func (ip *Interpreter) Global() *env.Scope { return ip.global }

func (ip *Interpreter) runid() uint64 {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return ip.id
}

// stop cancels the currently running Eval: bump the generation counter
// and close done so any goroutine selecting on it unwinds, then arm a
// fresh done channel for the next Eval call.
func (ip *Interpreter) stop() {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	atomic.AddUint64(&ip.id, 1)
	close(ip.done)
	ip.done = make(chan struct{})
}

// Eval runs prog to completion against the global scope. A host panic
// (a genuine implementation bug, not a user-level `throw`) is recovered
// into a *polyerrors.ExecError of kind InternalError carrying a
// RuntimePanic, rather than crashing the process — this package never
// calls os.Exit itself.
func (ip *Interpreter) Eval(ctx context.Context, prog []value.Stmt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			rp := &polyerrors.RuntimePanic{Value: r, Stack: stack, FilteredStack: polyerrors.FilterStack(stack, "github.com/breadchris/polyglang/interp")}
			err = polyerrors.InternalError(fmt.Sprintf("recovered panic: %v", r), rp)
		}
	}()
	return ip.execBlock(ctx, prog, ip.global)
}

// EvalWithContext runs prog, honoring ctx's cancellation by unwinding at
// the next statement or polyglot-group boundary.
func (ip *Interpreter) EvalWithContext(ctx context.Context, prog []value.Stmt) error {
	ip.mu.Lock()
	done := ip.done
	ip.mu.Unlock()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- ip.Eval(ctx, prog)
	}()

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		ip.stop()
		<-resultCh // wait for Eval to notice done and unwind
		return ctx.Err()
	case <-done:
		return <-resultCh
	}
}

func (ip *Interpreter) cancelled() bool {
	select {
	case <-ip.done:
		return true
	default:
		return false
	}
}

func (ip *Interpreter) auditRecord(eventKind string, details map[string]interface{}) {
	if ip.audit == nil {
		return
	}
	if _, err := ip.audit.Record(eventKind, details); err != nil {
		ip.logger.With("component", "interp").Error("audit record failed", "event", eventKind, "err", err)
	}
}

func (ip *Interpreter) deadline() time.Time {
	cfg := ip.sandbox.ActiveConfig()
	wall := cfg.WallClock
	if wall <= 0 {
		wall = 30 * time.Second
	}
	return time.Now().Add(wall)
}
