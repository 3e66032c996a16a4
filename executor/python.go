package executor

import "fmt"

// pythonWrapper embeds source in a script that reads argv[1] as a JSON
// bindings object, installs each key as a module-level global, evaluates
// source as a sequence of statements, and prints the JSON-encoded value
// of the final expression to stdout.
func pythonWrapper(source string) string {
	return fmt.Sprintf(`import sys, json, ast

_bindings = json.loads(sys.argv[1])
globals().update(_bindings)

_source = %q
_tree = ast.parse(_source, mode="exec")
_result = None
if _tree.body and isinstance(_tree.body[-1], ast.Expr):
    _last = _tree.body.pop()
    exec(compile(_tree, "<polyglot-block>", "exec"), globals())
    _result = eval(compile(ast.Expression(_last.value), "<polyglot-block>", "eval"), globals())
else:
    exec(compile(_tree, "<polyglot-block>", "exec"), globals())

print(json.dumps(_result))
`, source)
}
