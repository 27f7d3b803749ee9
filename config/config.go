// Package config holds the settings of a trace or cosimulation run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
)

// Environment variables read by ApplyEnv.
const (
	EnvTracePath    = "RVCOMMIT_TRACE"
	EnvTraceEnabled = "RVCOMMIT_TRACE_ON"
	EnvDebugAddr    = "RVCOMMIT_DEBUG_ADDR"
	EnvMaxMiss      = "RVCOMMIT_MAX_MISS"
	EnvCosim        = "RVCOMMIT_COSIM"
	EnvMaxCycles    = "RVCOMMIT_MAX_CYCLES"
)

// Config holds the settings of one run.
type Config struct {
	// TracePath is the trace output file.
	// Default: signature.txt.
	TracePath string `json:"trace_path"`

	// TraceEnabled turns on trace output.
	TraceEnabled bool `json:"trace_enabled"`

	// DebugAddr is a hex PC whose every retirement is logged. Zero
	// disables the watch.
	DebugAddr string `json:"debug_addr"`

	// MaxMiss is the hex mismatch count at which cosimulation halts.
	// Default: 0x1000.
	MaxMiss string `json:"max_miss"`

	// Cosim runs the reference model in lockstep.
	Cosim bool `json:"cosim"`

	// MaxCycles stops the run after this many cycles. Zero means no limit.
	MaxCycles uint64 `json:"max_cycles"`

	// DeadlockCycles is how long the run may go without a new commit PC
	// before a deadlock warning is printed.
	// Default: 100000.
	DeadlockCycles uint64 `json:"deadlock_cycles"`

	// Hart is printed in the trace line prefix.
	Hart int `json:"hart"`

	// ELF is the program to run.
	ELF string `json:"elf"`

	// CycleStamp appends the cycle number to trace lines.
	CycleStamp bool `json:"cycle_stamp"`

	// SpikeCommitFormat emits Spike's two-line commit shape.
	SpikeCommitFormat bool `json:"spike_commit_format"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		TracePath:      "signature.txt",
		DebugAddr:      "0",
		MaxMiss:        "0x1000",
		DeadlockCycles: 100000,
	}
}

// Load reads a Config from a JSON file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return c, nil
}

// Save writes the Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyPlusArgs applies simulator-style "+name" and "+name=value"
// arguments.
func (c *Config) ApplyPlusArgs(args []string) error {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "+") {
			return fmt.Errorf("unexpected argument %q", arg)
		}

		name, value, _ := strings.Cut(arg[1:], "=")
		switch name {
		case "torture_dump_ON":
			c.TraceEnabled = true
		case "torture_dump":
			c.TracePath = value
		case "debug_addr":
			c.DebugAddr = value
		case "max_miss":
			c.MaxMiss = value
		case "max-cycles":
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid +max-cycles value %q: %w", value, err)
			}
			c.MaxCycles = n
		case "load":
			c.ELF = value
		case "cosim":
			c.Cosim = true
		default:
			return fmt.Errorf("unknown plusarg %q", arg)
		}
	}

	return nil
}

// ApplyEnv overrides fields from RVCOMMIT_* environment variables.
func (c *Config) ApplyEnv() {
	c.TracePath = env.Str(EnvTracePath, c.TracePath)
	c.DebugAddr = env.Str(EnvDebugAddr, c.DebugAddr)
	c.MaxMiss = env.Str(EnvMaxMiss, c.MaxMiss)

	if env.Has(EnvTraceEnabled) {
		c.TraceEnabled = env.Bool(EnvTraceEnabled)
	}
	if env.Has(EnvCosim) {
		c.Cosim = env.Bool(EnvCosim)
	}
	if env.Has(EnvMaxCycles) {
		c.MaxCycles = uint64(env.Int(EnvMaxCycles, int(c.MaxCycles)))
	}
}

// Validate checks that every field is usable.
func (c *Config) Validate() error {
	if c.TraceEnabled && c.TracePath == "" {
		return fmt.Errorf("trace_path must be set when tracing is enabled")
	}
	if _, err := c.DebugAddress(); err != nil {
		return err
	}
	if _, err := c.MaxMismatches(); err != nil {
		return err
	}
	if c.DeadlockCycles == 0 {
		return fmt.Errorf("deadlock_cycles must be > 0")
	}
	if c.Hart < 0 || c.Hart > 999 {
		return fmt.Errorf("hart must be between 0 and 999")
	}
	return nil
}

// DebugAddress parses DebugAddr.
func (c *Config) DebugAddress() (uint64, error) {
	v, err := parseHex(c.DebugAddr)
	if err != nil {
		return 0, fmt.Errorf("invalid debug_addr: %w", err)
	}
	return v, nil
}

// MaxMismatches parses MaxMiss.
func (c *Config) MaxMismatches() (uint64, error) {
	v, err := parseHex(c.MaxMiss)
	if err != nil {
		return 0, fmt.Errorf("invalid max_miss: %w", err)
	}
	return v, nil
}

// parseHex accepts hex digits with or without a 0x prefix. An empty
// string is zero.
func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}
