package interp

import "github.com/breadchris/polyglang/value"

// Control-flow is threaded through execStmt/evalExpr as distinguished
// error values rather than Go's own return/break/continue, since those
// need to unwind across an arbitrary number of nested host scopes (loop
// bodies, try/finally, function calls) before they are caught at the
// right boundary.

type breakSignal struct{}

func (breakSignal) Error() string { return "break outside loop" }

type continueSignal struct{}

func (continueSignal) Error() string { return "continue outside loop" }

// returnSignal unwinds to the nearest function call boundary.
type returnSignal struct{ Value value.Value }

func (returnSignal) Error() string { return "return outside function" }

// throwSignal is a user-level `throw expr`; it unwinds to the nearest
// try/catch, or becomes the fatal top-level error if none catches it.
type throwSignal struct{ Value value.Value }

func (t *throwSignal) Error() string { return "uncaught throw: " + t.Value.String() }
