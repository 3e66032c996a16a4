package executor

import (
	"fmt"
	"strings"
)

// csharpWrapper mirrors cppWrapper/rustWrapper for C#: a fragment lacking
// a `static void Main`/`static int Main` entry point is wrapped in a
// generated static class exposing a `PolyglotEntry` method with the
// UnmanagedCallersOnly ABI shape used for the other compiled languages.
func csharpWrapper(source string) string {
	if strings.Contains(source, "Main(") {
		return source
	}
	return fmt.Sprintf(`using System;
using System.Runtime.InteropServices;

public static class PolyglotWrapper
{
 [UnmanagedCallersOnly(EntryPoint = "polyglot_entry")]
 public static int PolyglotEntry(IntPtr argBuf, int argLen)
 {
%s
 return 0;
 }
}
`, indent(source, " "))
}
