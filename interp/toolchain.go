package interp

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/joho/godotenv"
)

// ToolchainConfig names the real compiler binaries used to turn a
// compiled-language polyglot block (cpp, rust, csharp) into a wasm32-wasi
// module for the compiled executor core. Every field is
// optional; withDefaults fills in the binary names present on a normal
// dev machine's PATH.
type ToolchainConfig struct {
	ClangBin string // cpp, targeting wasm32-wasi via --target
	RustcBin string // rust, targeting wasm32-wasi via --target
	DotnetBin string // csharp, published with the wasm-tools workload

	OutDir string // scratch directory for compiled.wasm artifacts
}

func (c ToolchainConfig) withDefaults() ToolchainConfig {
	if c.ClangBin == "" {
		c.ClangBin = "clang"
	}
	if c.RustcBin == "" {
		c.RustcBin = "rustc"
	}
	if c.DotnetBin == "" {
		c.DotnetBin = "dotnet"
	}
	if c.OutDir == "" {
		c.OutDir = filepath.Join(os.TempDir(), "polyglang-wasm")
	}
	return c
}

// ToolchainConfigFromEnv overrides the zero-value ToolchainConfig with
// POLYGLANG_TOOLCHAIN_* environment variables, loading envFile with
// godotenv first if non-empty — the same override shape sandbox.Config
// uses, kept consistent across both configuration
// surfaces.
func ToolchainConfigFromEnv(envFile string) ToolchainConfig {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	var c ToolchainConfig
	if v := os.Getenv("POLYGLANG_TOOLCHAIN_CLANG"); v != "" {
		c.ClangBin = v
	}
	if v := os.Getenv("POLYGLANG_TOOLCHAIN_RUSTC"); v != "" {
		c.RustcBin = v
	}
	if v := os.Getenv("POLYGLANG_TOOLCHAIN_DOTNET"); v != "" {
		c.DotnetBin = v
	}
	if v := os.Getenv("POLYGLANG_TOOLCHAIN_OUT_DIR"); v != "" {
		c.OutDir = v
	}
	return c
}

// compile invokes the real toolchain for language against wrappedSource
// (already wrapped with the extern "C" entry shim by the executor's
// Prepare step), producing a wasm32-wasi module on disk. It returns the
// module's path and the entry symbol the compiled executor should invoke.
func (c ToolchainConfig) compile(ctx context.Context, language, wrappedSource string) (libraryPath, symbol string, err error) {
	c = c.withDefaults()
	if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
		return "", "", fmt.Errorf("toolchain out dir: %w", err)
	}

	sum := sha256.Sum256([]byte(language + "\x00" + wrappedSource))
	base := fmt.Sprintf("%x", sum)

	const entrySymbol = "polyglot_entry"

	switch language {
	case "cpp":
		srcPath := filepath.Join(c.OutDir, base+".cpp")
		outPath := filepath.Join(c.OutDir, base+".wasm")
		if err := os.WriteFile(srcPath, []byte(wrappedSource), 0o644); err != nil {
			return "", "", err
		}
		cmd := exec.CommandContext(ctx, c.ClangBin,
			"--target=wasm32-wasi", "-nostartfiles", "-Wl,--no-entry",
			"-Wl,--export="+entrySymbol,
			"-O2", "-o", outPath, srcPath)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", "", fmt.Errorf("clang: %w: %s", err, out)
		}
		return outPath, entrySymbol, nil

	case "rust":
		srcPath := filepath.Join(c.OutDir, base+".rs")
		outPath := filepath.Join(c.OutDir, base+".wasm")
		if err := os.WriteFile(srcPath, []byte(wrappedSource), 0o644); err != nil {
			return "", "", err
		}
		cmd := exec.CommandContext(ctx, c.RustcBin,
			"--target=wasm32-wasi", "--crate-type=cdylib",
			"-O", "-o", outPath, srcPath)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", "", fmt.Errorf("rustc: %w: %s", err, out)
		}
		return outPath, entrySymbol, nil

	case "csharp":
		projDir := filepath.Join(c.OutDir, base)
		if err := os.MkdirAll(projDir, 0o755); err != nil {
			return "", "", err
		}
		srcPath := filepath.Join(projDir, "Block.cs")
		if err := os.WriteFile(srcPath, []byte(wrappedSource), 0o644); err != nil {
			return "", "", err
		}
		outPath := filepath.Join(projDir, "bin", base+".wasm")
		cmd := exec.CommandContext(ctx, c.DotnetBin, "publish", projDir,
			"-r", "wasi-wasm", "-c", "Release", "-o", filepath.Join(projDir, "bin"))
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", "", fmt.Errorf("dotnet publish: %w: %s", err, out)
		}
		return outPath, entrySymbol, nil

	default:
		return "", "", fmt.Errorf("toolchain: unsupported compiled language %q", language)
	}
}
