package sandbox

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	polyerrors "github.com/breadchris/polyglang/errors"
)

// Operation names the class of side-effecting operation being checked,
// used both for capability selection and for the audit record's
// details.op field.
type Operation string

const (
	OpFSRead Operation = "read"
	OpFSWrite Operation = "write"
	OpFSExecute Operation = "execute"
	OpFSDelete Operation = "delete"
	OpFSMkdir Operation = "mkdir"
	OpNetConnect Operation = "net_connect"
	OpNetListen Operation = "net_listen"
	OpSysExec Operation = "sys_exec"
	OpBlockLoad Operation = "block_load"
	OpBlockCall Operation = "block_call"
)

// AuditSink is the subset of the audit log's contract the sandbox needs.
// Declared here (not imported from package audit) to keep sandbox free of
// a dependency on audit's storage concerns; audit.Log satisfies this.
type AuditSink interface {
	Record(eventKind string, details map[string]interface{}) (uint64, error)
}

// noopSink discards audit records; used when a Sandbox is constructed
// without a sink, so Sandbox never needs a nil check on its hot path.
type noopSink struct{}

func (noopSink) Record(string, map[string]interface{}) (uint64, error) { return 0, nil }

// Sandbox holds a per-goroutine-group stack of active Configs. Enter
// pushes a Config and returns a guard; the guard's Exit restores the
// previous configuration. This stack discipline lets per-block sandbox
// overrides compose without a global mutable slot: two Sandboxes (e.g.
// one per parallel worker) never share stack state.
type Sandbox struct {
	mu sync.Mutex
	stack []Config
	audit AuditSink
}

// New creates a Sandbox whose base configuration is cfg. Use WithAudit to
// attach an audit sink; without one, denials are still returned as errors
// but nothing is recorded (useful for unit tests of pure policy logic).
func New(cfg Config) *Sandbox {
	return &Sandbox{stack: []Config{cfg}, audit: noopSink{}}
}

func (s *Sandbox) WithAudit(sink AuditSink) *Sandbox {
	s.audit = sink
	return s
}

// Guard is returned by Enter; call Exit exactly once to pop the scope.
type Guard struct {
	id string
	sb *Sandbox
}

func (g *Guard) Exit() {
	g.sb.mu.Lock()
	defer g.sb.mu.Unlock()
	if len(g.sb.stack) > 1 {
		g.sb.stack = g.sb.stack[:len(g.sb.stack)-1]
	}
}

// Enter pushes cfg as the active configuration and returns a guard whose
// Exit restores the prior configuration.
func (s *Sandbox) Enter(cfg Config) *Guard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, cfg)
	return &Guard{id: uuid.NewString(), sb: s}
}

// ActiveConfig returns the currently active configuration (top of stack).
func (s *Sandbox) ActiveConfig() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack[len(s.stack)-1]
}

// Depth reports how many scopes are currently pushed.
func (s *Sandbox) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// Check is the sandbox's single entry point: it returns nil if op is
// permitted against target under the active configuration, or a
// *errors.ExecError of kind SandboxViolation otherwise, after writing
// exactly one audit record for the denial.
func (s *Sandbox) Check(op Operation, target string) error {
	cfg := s.ActiveConfig()
	if err := s.evaluate(cfg, op, target); err != nil {
		reason := err.Error()
		_, _ = s.audit.Record("sandbox.deny", map[string]interface{}{
			"op":     string(op),
			"target": target,
			"reason": reason,
		})
		return polyerrors.SandboxViolation(reason)
	}
	return nil
}

func (s *Sandbox) evaluate(cfg Config, op Operation, target string) error {
	switch op {
	case OpFSRead:
		if !cfg.Caps.Has(FSRead) {
			return fmt.Errorf("FS_READ not granted")
		}
		return checkPathAllowed(cfg, target)
	case OpFSWrite:
		if !cfg.Caps.Has(FSWrite) {
			return fmt.Errorf("FS_WRITE not granted")
		}
		return checkPathAllowed(cfg, target)
	case OpFSDelete:
		if !cfg.Caps.Has(FSDelete) {
			return fmt.Errorf("FS_DELETE not granted")
		}
		return checkPathAllowed(cfg, target)
	case OpFSMkdir:
		if !cfg.Caps.Has(FSMkdir) {
			return fmt.Errorf("FS_MKDIR not granted")
		}
		return checkPathAllowed(cfg, target)
	case OpFSExecute:
		if !cfg.Caps.Has(FSExecute) {
			return fmt.Errorf("FS_EXECUTE not granted")
		}
		return checkPathAllowed(cfg, target)
	case OpNetConnect:
		if !cfg.Caps.Has(NetConnect) {
			return fmt.Errorf("NET_CONNECT not granted")
		}
		return checkHostPortAllowed(cfg, target)
	case OpNetListen:
		if !cfg.Caps.Has(NetListen) {
			return fmt.Errorf("NET_LISTEN not granted")
		}
		return checkHostPortAllowed(cfg, target)
	case OpSysExec:
		if !cfg.Caps.Has(SysExec) {
			return fmt.Errorf("SYS_EXEC not granted")
		}
		return checkCommandAllowed(cfg, target)
	case OpBlockLoad:
		if !cfg.Caps.Has(BlockLoad) {
			return fmt.Errorf("BLOCK_LOAD not granted")
		}
		return nil
	case OpBlockCall:
		if !cfg.Caps.Has(BlockCall) {
			return fmt.Errorf("BLOCK_CALL not granted")
		}
		return nil
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
}

// CheckInputSize enforces the always-on input size caps,
// independent of the active Config's level.
func CheckInputSize(kind string, size int) error {
	var limit int
	switch kind {
	case "source_file":
		limit = MaxSourceFileBytes
	case "block_source":
		limit = MaxBlockSourceBytes
	case "file_read":
		limit = MaxFileReadBytes
	case "string":
		limit = MaxStringBytes
	default:
		return fmt.Errorf("unknown size-capped kind %q", kind)
	}
	if size > limit {
		return polyerrors.ResourceLimit(fmt.Sprintf("%s exceeds cap: %d > %d bytes", kind, size, limit))
	}
	return nil
}

// CheckDepth enforces parser nesting / call stack depth caps.
func CheckDepth(kind string, depth int) error {
	var limit int
	switch kind {
	case "parser_nesting":
		limit = MaxParserNestingDepth
	case "call_stack":
		limit = MaxCallStackDepth
	default:
		return fmt.Errorf("unknown depth-capped kind %q", kind)
	}
	if depth > limit {
		return polyerrors.ResourceLimit(fmt.Sprintf("%s exceeds depth cap: %d > %d", kind, depth, limit))
	}
	return nil
}
