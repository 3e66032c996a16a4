package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverableExceptInternal(t *testing.T) {
	for _, k := range []Kind{KindCompileError, KindLinkError, KindRuntimeError, KindTimeout, KindMarshallingError, KindSandboxViolation, KindResourceLimit} {
		e := New(k, "x", nil)
		assert.True(t, e.Recoverable(), "%s must be recoverable", k)
	}
	internal := New(KindInternalError, "x", nil)
	assert.False(t, internal.Recoverable())
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("underlying")
	e := RuntimeError("python", "boom", nil)
	e.Cause = cause
	assert.ErrorIs(t, e, cause)
}

func TestFrameString(t *testing.T) {
	f := Frame{Location: "block-1", Line: 3, Language: "python", BoundVariables: []string{"a", "b"}}
	s := f.String()
	assert.Contains(t, s, "python")
	assert.Contains(t, s, "block-1:3")
	assert.Contains(t, s, "a, b")
}
