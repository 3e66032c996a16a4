package executor

import (
	"fmt"
	"strings"
)

// rustWrapper mirrors cppWrapper for Rust: a fragment lacking `fn main`
// is wrapped in a `#[no_mangle] pub extern "C" fn polyglot_entry` taking
// the raw argument buffer pointer/length pair.
func rustWrapper(source string) string {
	if strings.Contains(source, "fn main") {
		return source
	}
	return fmt.Sprintf(`#[no_mangle]
pub extern "C" fn polyglot_entry(arg_buf: *const u8, arg_len: i32) -> i32 {
%s
 0
}
`, indent(source, " "))
}
