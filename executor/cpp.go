package executor

import (
	"fmt"
	"strings"
)

// cppWrapper synthesizes the extern "C" ABI entry point: if source does
// not already define `int main`, it is treated as a fragment and wrapped
// in a generated `polyglot_entry` function that receives the marshalled
// argument buffer and writes its result through the host-owned output
// buffer. Standard headers are auto-injected when absent.
func cppWrapper(source string) string {
	if strings.Contains(source, "int main") {
		return source
	}
	headers := ""
	for _, h := range []string{"cstdint", "cstring", "string", "vector"} {
		if !strings.Contains(source, h) {
			headers += fmt.Sprintf("#include <%s>\n", h)
		}
	}
	return fmt.Sprintf(`%s
extern "C" int32_t polyglot_entry(const uint8_t* arg_buf, int32_t arg_len) {
%s
 return 0;
}
`, headers, indent(source, " "))
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
