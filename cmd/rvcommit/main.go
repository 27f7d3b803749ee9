// Package main provides the rvcommit command.
// rvcommit renders RISC-V commit events into a Spike-compatible trace and
// optionally checks them against a reference model in lockstep.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sarchlab/rvcommit/config"
)

func main() {
	code, err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		os.Exit(1)
	}
	os.Exit(code)
}

// execute runs the command line args and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.cleanup != nil {
		if cerr := a.cleanup(); cerr != nil && err == nil {
			fmt.Fprintln(stderr, "Error:", cerr)
			err = cerr
		}
	}
	if err != nil {
		return 1, err
	}
	return a.exitCode, nil
}

// options holds the values of the command line flags.
type options struct {
	configPath     string
	elf            string
	trace          string
	traceOn        bool
	debugAddr      string
	maxMiss        string
	cosim          bool
	maxCycles      uint64
	deadlockCycles uint64
	hart           int
	cycleStamp     bool
	spikeFormat    bool
	verbose        bool
	timeout        time.Duration
	cpuProfile     string
	memProfile     string
}

type app struct {
	opts     options
	stdout   io.Writer
	stderr   io.Writer
	exitCode int
	cleanup  func() error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rvcommit",
		Short: "RISC-V commit trace and cosimulation engine",
		Long: `rvcommit runs a RISC-V program on the functional emulator, which stands in
for the core under test, and renders every retirement into a Spike-style
commit trace. With --cosim each retirement is also injected into a second
emulator acting as the reference model and the results are compared.

Simulator plusargs (+torture_dump_ON, +torture_dump=FILE, +debug_addr=HEX,
+max_miss=HEX, +max-cycles=N, +load=ELF, +cosim) may follow the
positional arguments.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.configPath, "config", "", "Path to a JSON configuration file")
	f.StringVar(&a.opts.elf, "elf", "", "Program ELF (replay: symbols and reference model)")
	f.StringVar(&a.opts.trace, "trace", "", `Trace output file, "-" for stdout`)
	f.BoolVar(&a.opts.traceOn, "trace-on", false, "Enable trace output")
	f.StringVar(&a.opts.debugAddr, "debug-addr", "", "Log every retirement at this hex PC")
	f.StringVar(&a.opts.maxMiss, "max-miss", "", "Hex mismatch count at which cosimulation halts")
	f.BoolVar(&a.opts.cosim, "cosim", false, "Check every retirement against the reference model")
	f.Uint64Var(&a.opts.maxCycles, "max-cycles", 0, "Stop after this many cycles (0: no limit)")
	f.Uint64Var(&a.opts.deadlockCycles, "deadlock-cycles", 0, "Cycles without a new commit PC before a deadlock warning")
	f.IntVar(&a.opts.hart, "hart", 0, "Hart number printed in the trace")
	f.BoolVar(&a.opts.cycleStamp, "cycle-stamp", false, "Append the cycle number to trace lines")
	f.BoolVar(&a.opts.spikeFormat, "spike-format", false, "Use Spike's two-line commit format")
	f.BoolVarP(&a.opts.verbose, "verbose", "v", false, "Print a run summary")
	f.DurationVar(&a.opts.timeout, "timeout", 0, "Stop the run after this wall-clock duration (0: no limit)")
	f.StringVar(&a.opts.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	f.StringVar(&a.opts.memProfile, "memprofile", "", "Write a heap profile to this file")

	root.AddCommand(newRunCmd(a), newRecordCmd(a), newReplayCmd(a))

	return root
}

// setup applies the wall-clock limit and starts profiling before a
// subcommand runs.
func (a *app) setup(cmd *cobra.Command) error {
	var cancel context.CancelFunc = func() {}
	if a.opts.timeout > 0 {
		var ctx context.Context
		ctx, cancel = context.WithTimeout(cmd.Context(), a.opts.timeout)
		cmd.SetContext(ctx)
	}

	stop, err := a.startProfiling()
	if err != nil {
		cancel()
		return err
	}

	a.cleanup = func() error {
		cancel()
		return stop()
	}
	return nil
}

// interrupted turns a cancelled run into an exit status. Other errors are
// returned unchanged.
func (a *app) interrupted(err error) error {
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	fmt.Fprintf(a.stderr, "Timeout reached after %v - stopping execution\n", a.opts.timeout)
	a.exitCode = 2
	return nil
}

// buildConfig layers the configuration sources: defaults or --config, then
// the environment, then explicitly set flags, then plusargs. It returns the
// positional arguments that are not plusargs.
func (a *app) buildConfig(flags *pflag.FlagSet, args []string) (*config.Config, []string, error) {
	cfg := config.Default()
	if a.opts.configPath != "" {
		var err error
		cfg, err = config.Load(a.opts.configPath)
		if err != nil {
			return nil, nil, err
		}
	}

	cfg.ApplyEnv()
	a.applyFlags(flags, cfg)

	positional, plus := splitArgs(args)
	if err := cfg.ApplyPlusArgs(plus); err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, positional, nil
}

func (a *app) applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	set := flags.Changed
	if set("elf") {
		cfg.ELF = a.opts.elf
	}
	if set("trace") {
		cfg.TracePath = a.opts.trace
	}
	if set("trace-on") {
		cfg.TraceEnabled = a.opts.traceOn
	}
	if set("debug-addr") {
		cfg.DebugAddr = a.opts.debugAddr
	}
	if set("max-miss") {
		cfg.MaxMiss = a.opts.maxMiss
	}
	if set("cosim") {
		cfg.Cosim = a.opts.cosim
	}
	if set("max-cycles") {
		cfg.MaxCycles = a.opts.maxCycles
	}
	if set("deadlock-cycles") {
		cfg.DeadlockCycles = a.opts.deadlockCycles
	}
	if set("hart") {
		cfg.Hart = a.opts.hart
	}
	if set("cycle-stamp") {
		cfg.CycleStamp = a.opts.cycleStamp
	}
	if set("spike-format") {
		cfg.SpikeCommitFormat = a.opts.spikeFormat
	}
}

// splitArgs separates "+name[=value]" plusargs from positional arguments.
func splitArgs(args []string) (positional, plus []string) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "+") {
			plus = append(plus, arg)
		} else {
			positional = append(positional, arg)
		}
	}
	return positional, plus
}
