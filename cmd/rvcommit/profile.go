package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// startProfiling starts CPU profiling when --cpuprofile is set. The
// returned function stops it and writes the heap profile for
// --memprofile.
func (a *app) startProfiling() (func() error, error) {
	var cpu *os.File
	if a.opts.cpuProfile != "" {
		f, err := os.Create(a.opts.cpuProfile)
		if err != nil {
			return nil, fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("could not start CPU profile: %w", err)
		}
		cpu = f
	}

	return func() error {
		if cpu != nil {
			pprof.StopCPUProfile()
			if err := cpu.Close(); err != nil {
				return fmt.Errorf("could not write CPU profile: %w", err)
			}
		}

		if a.opts.memProfile == "" {
			return nil
		}

		f, err := os.Create(a.opts.memProfile)
		if err != nil {
			return fmt.Errorf("could not create memory profile: %w", err)
		}
		defer func() { _ = f.Close() }()

		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return fmt.Errorf("could not write memory profile: %w", err)
		}
		return nil
	}, nil
}
