package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvcommit/config"
	"github.com/sarchlab/rvcommit/cosim"
	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/harness"
	"github.com/sarchlab/rvcommit/loader"
	"github.com/sarchlab/rvcommit/trace"
)

// outputs are the consumers attached to a commit source: the trace
// session, the divergence detector and any extra hooks.
type outputs struct {
	sink     *trace.FileSink
	session  *trace.Session
	detector *cosim.Detector

	hooks    []sim.Hook
	stoppers []harness.Stopper
}

// newOutputs builds the consumers cfg asks for. symbols may be nil.
func (a *app) newOutputs(cfg *config.Config, symbols trace.SymbolResolver) (*outputs, error) {
	o := &outputs{}

	if cfg.TraceEnabled {
		if err := o.openTrace(a, cfg, symbols); err != nil {
			return nil, err
		}
	} else if addr, _ := cfg.DebugAddress(); addr != 0 {
		o.hooks = append(o.hooks, trace.NewDebugWatch(addr, a.stdout))
	}

	if cfg.Cosim {
		if err := o.startCosim(cfg); err != nil {
			_ = o.Close()
			return nil, err
		}
	}

	return o, nil
}

func (o *outputs) openTrace(a *app, cfg *config.Config, symbols trace.SymbolResolver) error {
	debugAddr, _ := cfg.DebugAddress()

	var w io.Writer = a.stdout
	if cfg.TracePath != "-" {
		sink, err := trace.OpenFileSink(cfg.TracePath, true)
		if err != nil {
			return err
		}
		o.sink = sink
		w = sink
	}

	opts := []trace.SessionOption{
		trace.WithHart(cfg.Hart),
		trace.WithLog(a.stdout),
		trace.WithDebugAddr(debugAddr),
		trace.WithCycleStamp(cfg.CycleStamp),
		trace.WithSpikeCommitFormat(cfg.SpikeCommitFormat),
	}
	if symbols != nil {
		opts = append(opts, trace.WithSymbols(symbols))
	}

	o.session = trace.NewSession(w, opts...)
	h := trace.NewHook(o.session)
	o.hooks = append(o.hooks, h)
	o.stoppers = append(o.stoppers, h)

	return nil
}

func (o *outputs) startCosim(cfg *config.Config) error {
	if cfg.ELF == "" {
		return errors.New("cosimulation needs the program ELF")
	}

	engine := cosim.NewEmulatorEngine(cosim.DefaultBootRegisters,
		emu.WithStdout(io.Discard), emu.WithStderr(io.Discard),
		emu.WithHartID(uint64(cfg.Hart)))
	if err := engine.Initialize(cfg.ELF); err != nil {
		return err
	}

	maxMiss, _ := cfg.MaxMismatches()
	opts := []cosim.DetectorOption{cosim.WithMaxMismatches(maxMiss)}
	if o.session != nil {
		opts = append(opts, cosim.WithTrace(o.session))
	}

	o.detector = cosim.NewDetector(engine, opts...)
	h := cosim.NewHook(o.detector)
	o.hooks = append(o.hooks, h)
	o.stoppers = append(o.stoppers, h)

	return nil
}

// add appends a hook that can also stop the run.
func (o *outputs) add(h interface {
	sim.Hook
	harness.Stopper
}) {
	o.hooks = append(o.hooks, h)
	o.stoppers = append(o.stoppers, h)
}

// options returns the harness options that let the consumers stop the run.
func (o *outputs) options() []harness.Option {
	opts := make([]harness.Option, 0, len(o.stoppers))
	for _, s := range o.stoppers {
		opts = append(opts, harness.WithStopper(s))
	}
	return opts
}

// attach registers every hook with the commit source.
func (o *outputs) attach(src interface{ AcceptHook(sim.Hook) }) {
	for _, h := range o.hooks {
		src.AcceptHook(h)
	}
}

// mismatches returns the number of divergences seen, or zero without
// cosimulation.
func (o *outputs) mismatches() uint64 {
	if o.detector == nil {
		return 0
	}
	return o.detector.Mismatches()
}

// Close flushes and closes the trace file. Later calls do nothing.
func (o *outputs) Close() error {
	if o.sink == nil {
		return nil
	}
	sink := o.sink
	o.sink = nil
	return sink.Close()
}

// newDUT loads prog into the emulator that stands in for the core under
// test. It starts from the same register state as the reference model.
func (a *app) newDUT(cfg *config.Config, prog *loader.Program) *emu.Emulator {
	e := emu.NewEmulator(
		emu.WithStdout(a.stdout),
		emu.WithStderr(a.stderr),
		emu.WithHartID(uint64(cfg.Hart)),
	)

	mem := emu.NewMemory()
	prog.LoadInto(mem)
	e.LoadProgram(prog.EntryPoint, mem)
	e.SetHostAddresses(prog.Symbols.HostAddresses())

	for _, r := range cosim.DefaultBootRegisters {
		e.RegFile().WriteReg(r.Index, r.Value)
	}

	return e
}

// finish prints the summary and turns the run outcome into an exit code.
func (a *app) finish(o *outputs, reason harness.StopReason, stats harness.Stats, exitCode int64) {
	a.exitCode = int(exitCode)
	if n := o.mismatches(); n > 0 {
		fmt.Fprintf(a.stderr, "Cosimulation found %d mismatches\n", n)
		if a.exitCode == 0 {
			a.exitCode = 1
		}
	}

	if !a.opts.verbose {
		return
	}

	fmt.Fprintf(a.stdout, "\nStopped: %s\n", reason)
	fmt.Fprintf(a.stdout, "Exit code: %d\n", exitCode)
	fmt.Fprintf(a.stdout, "Cycles: %d\n", stats.Cycles)
	fmt.Fprintf(a.stdout, "Commits: %d\n", stats.Commits)
	fmt.Fprintf(a.stdout, "Traps: %d\n", stats.Traps)
	if o.detector != nil {
		fmt.Fprintf(a.stdout, "Mismatches: %d\n", o.detector.Mismatches())
	}
	if o.session != nil {
		fmt.Fprintf(a.stdout, "Trace lines: %d\n", o.session.Rendered())
	}
}
