package executor

import (
	"fmt"
	"strings"
)

// javascriptWrapper mirrors pythonWrapper for Node: bindings arrive as
// argv[2] JSON (argv[0] is the node binary, argv[1] the script path), are
// installed as globals via globalThis, and the block's source is wrapped
// in an immediately-invoked function whose final expression value is
// printed as JSON (expression-oriented return rule).
func javascriptWrapper(source string) string {
	return fmt.Sprintf(`const bindings = JSON.parse(process.argv[2]);
Object.assign(globalThis, bindings);

let __result;
(function() {
%s
})();
console.log(JSON.stringify(__result === undefined ? null : __result));
`, wrapFinalExpressionAsAssignment(source))
}

// wrapFinalExpressionAsAssignment rewrites the last statement of source,
// if it is a bare expression statement, into an assignment to __result so
// the wrapper can report it — a textual transform sufficient for the
// single-expression and single-statement blocks this interpreter
// produces; full JS statement parsing is intentionally not replicated
// here since the embedded Node process already has a real parser.
func wrapFinalExpressionAsAssignment(source string) string {
	trimmed := trimTrailingSemicolonAndSpace(source)
	lastStmt, rest := splitLastStatement(trimmed)
	if lastStmt == "" {
		return source
	}
	return rest + "__result = (" + lastStmt + ");"
}

func trimTrailingSemicolonAndSpace(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "; \t\n")
}

// splitLastStatement returns the source's final top-level statement and
// everything before it. Splitting is newline-based, matching the
// line-oriented polyglot blocks this interpreter emits; a block whose
// last line is a control-flow keyword (if/for/while/function/...) is left
// untouched by returning an empty lastStmt, since wrapping such a line in
// parentheses would be invalid JS.
func splitLastStatement(s string) (lastStmt, rest string) {
	lines := strings.Split(s, "\n")
	if len(lines) == 0 {
		return "", s
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	for _, kw := range []string{"if", "for", "while", "function", "class", "switch", "try", "{", "}", "return", "const", "let", "var"} {
		if strings.HasPrefix(last, kw) {
			return "", s + "\n"
		}
	}
	if last == "" {
		return "", s + "\n"
	}
	rest = strings.Join(lines[:len(lines)-1], "\n")
	if rest != "" {
		rest += "\n"
	}
	return last, rest
}
