package sandbox

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is a declarative sandbox configuration: a preset
// level plus optional per-axis overrides. It is a plain value — safe to
// construct, copy and compare — that becomes "active" only when pushed
// onto a Sandbox's scope stack via Enter.
type Config struct {
	Level Level
	Caps CapSet

	AllowedPaths []string // glob patterns, e.g. "/tmp/**"
	AllowedHosts []string
	AllowedPorts []int
	AllowedCommands []string // full argv[0] values, no shell expansion

	MaxMemoryBytes int64 // 0 == unlimited
	WallClock time.Duration
	CPUTime time.Duration
}

// Always-enforced input size caps, independent of level.
const (
	MaxSourceFileBytes = 100 * 1024 * 1024
	MaxBlockSourceBytes = 1 * 1024 * 1024
	MaxFileReadBytes = 10 * 1024 * 1024
	MaxParserNestingDepth = 1000
	MaxCallStackDepth = 10000
	MaxStringBytes = 10 * 1024 * 1024
)

// PresetConfig returns the declarative configuration for one of the four
// preset levels. Path allow-lists for Standard/Elevated are left empty
// here by design: the caller fills in the concrete /tmp and $HOME paths
// for the running environment via WithDefaultPaths, since the default
// paths are environment-dependent.
func PresetConfig(level Level) Config {
	switch level {
	case Restricted:
		return Config{
			Level: Restricted,
			Caps: NewCapSet(FSRead),
			MaxMemoryBytes: 128 * 1024 * 1024,
			WallClock: 10 * time.Second,
			CPUTime: 10 * time.Second,
		}
	case Standard:
		return Config{
			Level: Standard,
			Caps: NewCapSet(FSRead, FSWrite, FSMkdir, BlockLoad, BlockCall, SysEnv, SysTime),
			MaxMemoryBytes: 512 * 1024 * 1024,
			WallClock: 30 * time.Second,
			CPUTime: 30 * time.Second,
		}
	case Elevated:
		cfg := PresetConfig(Standard)
		cfg.Level = Elevated
		cfg.Caps = cfg.Caps.Union(NewCapSet(NetConnect, SysExec))
		cfg.MaxMemoryBytes = 1024 * 1024 * 1024
		cfg.WallClock = 60 * time.Second
		cfg.CPUTime = 60 * time.Second
		return cfg
	case Unrestricted:
		return Config{
			Level: Unrestricted,
			Caps: NewCapSet(FSRead, FSWrite, FSExecute, FSDelete, FSMkdir, NetConnect, NetListen,
				NetRaw, SysExec, SysEnv, SysTime, BlockLoad, BlockCall, ResUnlimitedMem, ResUnlimitedCPU, Unsafe),
		}
	default:
		return PresetConfig(Restricted)
	}
}

// WithDefaultPaths fills in the "/tmp, $HOME" default allow-list that
// Standard and Elevated grant in a normal deployment.
func (c Config) WithDefaultPaths() Config {
	if c.Level == Standard || c.Level == Elevated {
		home, _ := os.UserHomeDir()
		c.AllowedPaths = append(c.AllowedPaths, "/tmp/**")
		if home != "" {
			c.AllowedPaths = append(c.AllowedPaths, home+"/**")
		}
	}
	return c
}

// LoadOverridesFromEnv applies optional environment-variable overrides of
// resource caps, for local dev/test harnesses only.
// envFile, if non-empty, is loaded with godotenv first: its variables are
// set in the process environment (variables that are already set keep
// their values) before the overrides are read.
func LoadOverridesFromEnv(c Config, envFile string) Config {
	if envFile != "" {
		_ = godotenv.Load(envFile) // best-effort; absence is not an error
	}
	if v := os.Getenv("POLYGLANG_SANDBOX_MAX_MEMORY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxMemoryBytes = n
		}
	}
	if v := os.Getenv("POLYGLANG_SANDBOX_WALL_CLOCK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WallClock = time.Duration(n) * time.Second
		}
	}
	return c
}
