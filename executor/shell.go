package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	polyerrors "github.com/breadchris/polyglang/errors"
	"github.com/breadchris/polyglang/marshal"
	"github.com/breadchris/polyglang/sandbox"
	"github.com/breadchris/polyglang/value"
)

// shellExecutor runs a shell script directly: source is written to a
// temp script, run under the process sandbox, and stdout is captured as
// the block's value (a string) — no JSON boundary, no bindings-as-globals
// convention, since a shell script's "globals" are simply its environment.
type shellExecutor struct {
	sandbox SandboxChecker
}

func newShellExecutor(sb SandboxChecker) *shellExecutor {
	return &shellExecutor{sandbox: sb}
}

func (e *shellExecutor) Prepare(ctx context.Context, source string, bindings []string) (PreparedCode, error) {
	if err := sandbox.CheckInputSize("block_source", len(source)); err != nil {
		return PreparedCode{}, err
	}
	return PreparedCode{Language: string(LangShell), CanonicalSource: source}, nil
}

func (e *shellExecutor) Execute(ctx context.Context, prepared PreparedCode, inputs map[string]marshal.Foreign, deadline time.Time) (marshal.Foreign, error) {
	if e.sandbox != nil {
		if err := e.sandbox.Check(sandbox.OpSysExec, "/bin/sh"); err != nil {
			return marshal.Foreign{}, err
		}
	}

	scriptPath := filepath.Join(os.TempDir(), fmt.Sprintf("polyglang-shell-%s.sh", uuid.NewString()))
	if err := os.WriteFile(scriptPath, []byte(prepared.CanonicalSource), 0o700); err != nil {
		return marshal.Foreign{}, polyerrors.InternalError("writing shell script", err)
	}
	defer os.Remove(scriptPath)

	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, "/bin/sh", scriptPath)
	cmd.Env = append(os.Environ(), bindingsAsEnv(inputs)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return marshal.Foreign{}, polyerrors.Timeout(string(LangShell), time.Since(start).Milliseconds())
	}
	if runErr != nil {
		return marshal.Foreign{}, polyerrors.RuntimeError(string(LangShell), stderr.String(), nil)
	}

	return marshal.Foreign{Kind: value.KindString, Str: stdout.String()}, nil
}

func (e *shellExecutor) Shutdown() error { return nil }

// bindingsAsEnv flattens scalar bindings to KEY=VALUE environment entries;
// containers and functions have no shell-environment representation and
// are silently omitted (a shell block that needs a container binding must
// be marshalled by the caller into individual scalar bindings instead).
func bindingsAsEnv(inputs map[string]marshal.Foreign) []string {
	var env []string
	for k, f := range inputs {
		switch f.Kind {
		case value.KindString:
			env = append(env, fmt.Sprintf("%s=%s", k, f.Str))
		case value.KindInt:
			env = append(env, fmt.Sprintf("%s=%d", k, f.Int))
		case value.KindFloat:
			env = append(env, fmt.Sprintf("%s=%g", k, f.Float))
		case value.KindBool:
			env = append(env, fmt.Sprintf("%s=%t", k, f.Bool))
		}
	}
	return env
}
