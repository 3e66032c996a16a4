package executor

import (
	"bytes"
	"context"
	"encoding/json"
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

// wrapperFunc synthesizes the full script run by the interpreter
// subprocess: it embeds source, installs bindings as globals by reading a
// JSON blob from argv[1], evaluates the block, and writes the JSON-encoded
// return value to stdout.
type wrapperFunc func(source string) string

// subprocessExecutor is the shared core for Python and JavaScript: an
// argv0-only subprocess, sandboxed, that receives its JSON-encoded
// bindings as a command-line argument and prints its JSON-encoded result
// on stdout.
type subprocessExecutor struct {
	language    string
	wrap        wrapperFunc
	sandbox     SandboxChecker
	interpreter string // argv0, e.g. "python3" or "node"
	scratchDir  string
}

func newSubprocessExecutor(language string, wrap wrapperFunc, sb SandboxChecker) *subprocessExecutor {
	interpreters := map[string]string{
		"python":     "python3",
		"javascript": "node",
	}
	return &subprocessExecutor{
		language:    language,
		wrap:        wrap,
		sandbox:     sb,
		interpreter: interpreters[language],
		scratchDir:  os.TempDir(),
	}
}

func (e *subprocessExecutor) Prepare(ctx context.Context, source string, bindings []string) (PreparedCode, error) {
	if err := sandbox.CheckInputSize("block_source", len(source)); err != nil {
		return PreparedCode{}, err
	}
	// Interpreted-language preparation is syntax-agnostic at this layer:
	// source is not checked here. Malformed source makes the interpreter
	// exit nonzero at execute time, which Execute reports as RuntimeError;
	// no CompileError is produced for these languages.
	return PreparedCode{Language: e.language, CanonicalSource: source}, nil
}

func (e *subprocessExecutor) Execute(ctx context.Context, prepared PreparedCode, inputs map[string]marshal.Foreign, deadline time.Time) (marshal.Foreign, error) {
	if e.sandbox != nil {
		if err := e.sandbox.Check(sandbox.OpSysExec, e.interpreter); err != nil {
			return marshal.Foreign{}, err
		}
	}

	scriptPath := filepath.Join(e.scratchDir, fmt.Sprintf("polyglang-%s-%s%s", e.language, uuid.NewString(), scriptExt(e.language)))
	if err := os.WriteFile(scriptPath, []byte(e.wrap(prepared.CanonicalSource)), 0o600); err != nil {
		return marshal.Foreign{}, polyerrors.InternalError("writing interpreter wrapper script", err)
	}
	defer os.Remove(scriptPath)

	bindingsJSON, err := encodeBindings(inputs)
	if err != nil {
		return marshal.Foreign{}, err
	}

	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(runCtx, e.interpreter, scriptPath, bindingsJSON)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return marshal.Foreign{}, polyerrors.Timeout(e.language, time.Since(start).Milliseconds())
	}
	if runErr != nil {
		return marshal.Foreign{}, polyerrors.RuntimeError(e.language, stderr.String(), nil)
	}

	return decodeResult(stdout.Bytes())
}

func (e *subprocessExecutor) Shutdown() error { return nil }

// encodeBindings marshals the input map to the JSON blob the wrapper
// script reads as argv[1]. JSON, not the ABI wire buffer, is the
// interpreted-language boundary format: these executors already speak
// JSON natively as embedded-interpreter globals.
func encodeBindings(inputs map[string]marshal.Foreign) (string, error) {
	plain := make(map[string]interface{}, len(inputs))
	for k, f := range inputs {
		v, err := foreignToJSONValue(f)
		if err != nil {
			return "", err
		}
		plain[k] = v
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", polyerrors.MarshallingError(string(marshal.ToForeign), "bindings map")
	}
	return string(raw), nil
}

func foreignToJSONValue(f marshal.Foreign) (interface{}, error) {
	switch f.Kind {
	case value.KindNull:
		return nil, nil
	case value.KindBool:
		return f.Bool, nil
	case value.KindInt:
		return f.Int, nil
	case value.KindFloat:
		return f.Float, nil
	case value.KindString, value.KindForeign:
		return f.Str, nil
	case value.KindArray:
		out := make([]interface{}, len(f.Items))
		for i, it := range f.Items {
			v, err := foreignToJSONValue(it)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case value.KindDict, value.KindStruct:
		out := make(map[string]interface{}, len(f.Pairs))
		for _, p := range f.Pairs {
			v, err := foreignToJSONValue(p.Value)
			if err != nil {
				return nil, err
			}
			out[p.Key] = v
		}
		return out, nil
	default:
		return nil, polyerrors.MarshallingError(string(marshal.ToForeign), "unsupported JSON boundary kind")
	}
}

// decodeResult parses the wrapper script's single JSON value on stdout
// into a marshal.Foreign. The wrapper always emits exactly one JSON
// document; a trailing newline is tolerated.
func decodeResult(stdout []byte) (marshal.Foreign, error) {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(stdout))
	if err := dec.Decode(&raw); err != nil {
		return marshal.Foreign{}, polyerrors.MarshallingError(string(marshal.ToHost), "interpreter stdout was not valid JSON")
	}
	return jsonValueToForeign(raw), nil
}

func jsonValueToForeign(raw interface{}) marshal.Foreign {
	switch v := raw.(type) {
	case nil:
		return marshal.Foreign{Kind: value.KindNull}
	case bool:
		return marshal.Foreign{Kind: value.KindBool, Bool: v}
	case float64:
		if v == float64(int64(v)) {
			return marshal.Foreign{Kind: value.KindInt, Int: int64(v)}
		}
		return marshal.Foreign{Kind: value.KindFloat, Float: v}
	case string:
		return marshal.Foreign{Kind: value.KindString, Str: v}
	case []interface{}:
		items := make([]marshal.Foreign, len(v))
		for i, it := range v {
			items[i] = jsonValueToForeign(it)
		}
		return marshal.Foreign{Kind: value.KindArray, Items: items}
	case map[string]interface{}:
		pairs := make([]marshal.ForeignPair, 0, len(v))
		for k, vv := range v {
			pairs = append(pairs, marshal.ForeignPair{Key: k, Value: jsonValueToForeign(vv)})
		}
		return marshal.Foreign{Kind: value.KindDict, Pairs: pairs}
	default:
		return marshal.Foreign{Kind: value.KindNull}
	}
}

func scriptExt(language string) string {
	switch language {
	case "python":
		return ".py"
	case "javascript":
		return ".js"
	default:
		return ".txt"
	}
}
