package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/harness"
	"github.com/sarchlab/rvcommit/loader"
	"github.com/sarchlab/rvcommit/trace"
)

func newReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <events.bin> [+plusargs]",
		Short: "Format a recorded event stream into a trace",
		Long: `Replay reads an event stream written by "record" and renders it into a
trace. Tracing is always on. With --cosim the events are checked against the
program given by --elf, which also provides symbol markers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, positional, err := a.buildConfig(cmd.Flags(), args)
			if err != nil {
				return err
			}
			if len(positional) != 1 {
				return fmt.Errorf("expected one event stream, got %d arguments", len(positional))
			}
			cfg.TraceEnabled = true

			f, err := os.Open(positional[0])
			if err != nil {
				return fmt.Errorf("failed to open event stream: %w", err)
			}
			defer f.Close()

			sr, err := commit.NewStreamReader(bufio.NewReader(f))
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("hart") {
				cfg.Hart = int(sr.Hart())
			}

			var symbols trace.SymbolResolver
			if cfg.ELF != "" {
				prog, err := loader.Load(cfg.ELF)
				if err != nil {
					return fmt.Errorf("failed to load program: %w", err)
				}
				symbols = prog.Symbols
			}

			o, err := a.newOutputs(cfg, symbols)
			if err != nil {
				return err
			}
			defer o.Close()

			opts := append(o.options(),
				harness.WithMaxCycles(cfg.MaxCycles),
				harness.WithWatchdog(harness.NewWatchdog(cfg.DeadlockCycles, a.stdout)))
			p := harness.NewPlayer(sr, opts...)
			o.attach(p)

			reason, err := p.Run(cmd.Context())
			if err != nil {
				return a.interrupted(err)
			}
			if err := o.Close(); err != nil {
				return err
			}

			a.finish(o, reason, p.Stats(), 0)
			return nil
		},
	}
}
