package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/harness"
	"github.com/sarchlab/rvcommit/loader"
)

func newRecordCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "record <program.elf> <events.bin> [+plusargs]",
		Short: "Run a program and record its commit events for replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, positional, err := a.buildConfig(cmd.Flags(), args)
			if err != nil {
				return err
			}
			if len(positional) != 2 {
				return fmt.Errorf("expected a program and an output file, got %d arguments", len(positional))
			}
			cfg.ELF = positional[0]

			prog, err := loader.Load(cfg.ELF)
			if err != nil {
				return fmt.Errorf("failed to load program: %w", err)
			}

			f, err := os.Create(positional[1])
			if err != nil {
				return fmt.Errorf("failed to create event stream: %w", err)
			}
			defer f.Close()

			bw := bufio.NewWriter(f)
			sw, err := commit.NewStreamWriter(bw, uint32(cfg.Hart))
			if err != nil {
				return err
			}

			o, err := a.newOutputs(cfg, prog.Symbols)
			if err != nil {
				return err
			}
			defer o.Close()

			rec := harness.NewRecorder(sw)
			o.add(rec)

			opts := append(o.options(),
				harness.WithMaxCycles(cfg.MaxCycles),
				harness.WithWatchdog(harness.NewWatchdog(cfg.DeadlockCycles, a.stdout)))
			d := harness.NewDriver(a.newDUT(cfg, prog), opts...)
			o.attach(d)

			reason, err := d.Run(cmd.Context())
			if err != nil {
				return a.interrupted(err)
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("failed to write event stream: %w", err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close event stream: %w", err)
			}
			if err := o.Close(); err != nil {
				return err
			}

			if a.opts.verbose {
				fmt.Fprintf(a.stdout, "Recorded %d entries to %s\n", rec.Entries(), positional[1])
			}
			a.finish(o, reason, d.Stats(), d.ExitCode())
			return nil
		},
	}
}
