package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	polyerrors "github.com/breadchris/polyglang/errors"
)

type recordingSink struct {
	calls []struct {
		kind string
		details map[string]interface{}
	}
}

func (r *recordingSink) Record(kind string, details map[string]interface{}) (uint64, error) {
	r.calls = append(r.calls, struct {
		kind    string
		details map[string]interface{}
	}{kind, details})
	return uint64(len(r.calls)), nil
}

func TestStandardLevelDeniesUnlistedWrite(t *testing.T) {
	sink := &recordingSink{}
	sb := New(PresetConfig(Standard)).WithAudit(sink) // no custom paths granted

	err := sb.Check(OpFSWrite, "/etc/passwd")
	require.Error(t, err)

	var execErr *polyerrors.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, polyerrors.KindSandboxViolation, execErr.Kind)

	require.Len(t, sink.calls, 1, "exactly one audit record on denial")
	assert.Equal(t, "sandbox.deny", sink.calls[0].kind)
	assert.Equal(t, "write", sink.calls[0].details["op"])
}

func TestAllowedPathPasses(t *testing.T) {
	sink := &recordingSink{}
	cfg := PresetConfig(Standard)
	cfg.AllowedPaths = []string{"/tmp/**"}
	sb := New(cfg).WithAudit(sink)

	err := sb.Check(OpFSWrite, "/tmp/scratch/out.txt")
	assert.NoError(t, err)
	assert.Len(t, sink.calls, 0, "zero audit records on allow")
}

func TestRestrictedDeniesNetwork(t *testing.T) {
	sb := New(PresetConfig(Restricted))
	err := sb.Check(OpNetConnect, "example.com:443")
	assert.Error(t, err)
}

func TestElevatedAllowsWhitelistedHost(t *testing.T) {
	cfg := PresetConfig(Elevated)
	cfg.AllowedHosts = []string{"example.com"}
	cfg.AllowedPorts = []int{443}
	sb := New(cfg)

	assert.NoError(t, sb.Check(OpNetConnect, "example.com:443"))
	assert.Error(t, sb.Check(OpNetConnect, "evil.com:443"))
}

func TestUnrestrictedAllowsEverything(t *testing.T) {
	sb := New(PresetConfig(Unrestricted))
	assert.NoError(t, sb.Check(OpFSWrite, "/etc/passwd"))
	assert.NoError(t, sb.Check(OpSysExec, "/bin/rm"))
}

func TestScopeStackRestoresOnExit(t *testing.T) {
	sb := New(PresetConfig(Restricted))
	require.Equal(t, Restricted, sb.ActiveConfig().Level)

	guard := sb.Enter(PresetConfig(Unrestricted))
	assert.Equal(t, Unrestricted, sb.ActiveConfig().Level)

	guard.Exit()
	assert.Equal(t, Restricted, sb.ActiveConfig().Level, "exiting scope must restore prior config")
}

func TestCommandWhitelistRequiresExactArgv0(t *testing.T) {
	cfg := PresetConfig(Elevated)
	cfg.AllowedCommands = []string{"/usr/bin/python3"}
	sb := New(cfg)

	assert.NoError(t, sb.Check(OpSysExec, "/usr/bin/python3"))
	assert.Error(t, sb.Check(OpSysExec, "/usr/bin/python3; rm -rf /"))
}

func TestInputSizeCaps(t *testing.T) {
	assert.NoError(t, CheckInputSize("block_source", MaxBlockSourceBytes))
	assert.Error(t, CheckInputSize("block_source", MaxBlockSourceBytes+1))
}

func TestDepthCaps(t *testing.T) {
	assert.NoError(t, CheckDepth("call_stack", MaxCallStackDepth))
	assert.Error(t, CheckDepth("call_stack", MaxCallStackDepth+1))
}
