package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rvcommit/harness"
	"github.com/sarchlab/rvcommit/loader"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <program.elf> [+plusargs]",
		Short: "Run a program and trace every retirement",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, positional, err := a.buildConfig(cmd.Flags(), args)
			if err != nil {
				return err
			}
			if len(positional) > 1 {
				return fmt.Errorf("unexpected argument %q", positional[1])
			}
			if len(positional) == 1 {
				cfg.ELF = positional[0]
			}
			if cfg.ELF == "" {
				return errors.New("no program given")
			}

			prog, err := loader.Load(cfg.ELF)
			if err != nil {
				return fmt.Errorf("failed to load program: %w", err)
			}

			if a.opts.verbose {
				fmt.Fprintf(a.stdout, "Loaded: %s\n", cfg.ELF)
				fmt.Fprintf(a.stdout, "Entry point: 0x%X\n", prog.EntryPoint)
				fmt.Fprintf(a.stdout, "Segments: %d\n", len(prog.Segments))
			}

			o, err := a.newOutputs(cfg, prog.Symbols)
			if err != nil {
				return err
			}
			defer o.Close()

			opts := append(o.options(),
				harness.WithMaxCycles(cfg.MaxCycles),
				harness.WithWatchdog(harness.NewWatchdog(cfg.DeadlockCycles, a.stdout)))
			d := harness.NewDriver(a.newDUT(cfg, prog), opts...)
			o.attach(d)

			reason, err := d.Run(cmd.Context())
			if err != nil {
				return a.interrupted(err)
			}
			if err := o.Close(); err != nil {
				return err
			}

			a.finish(o, reason, d.Stats(), d.ExitCode())
			return nil
		},
	}
}
