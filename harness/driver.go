// Package harness drives a commit source and publishes every retirement to
// the hooks attached to it.
//
// A Driver steps the functional emulator and stands in for the core under
// test. A Player reads a recorded event stream instead. Both publish the
// same entries at the same hook positions: the CSR changes and the AMO
// write of a retirement first, then the commit itself.
package harness

import (
	"context"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/insts"
)

// Stats holds counters for a run.
type Stats struct {
	// Cycles is the number of cycles driven.
	Cycles uint64
	// Commits is the number of commit events published.
	Commits uint64
	// Traps is the number of commits that raised an exception or took an
	// interrupt.
	Traps uint64
}

// Driver runs the functional emulator one retirement per cycle.
type Driver struct {
	runner

	emu *emu.Emulator

	cycle    uint64
	halted   bool
	exitCode int64
	stats    Stats
}

// NewDriver creates a Driver around e. The program must already be loaded.
func NewDriver(e *emu.Emulator, opts ...Option) *Driver {
	d := &Driver{emu: e}
	for _, opt := range opts {
		opt(&d.runner)
	}
	return d
}

// Emulator returns the emulator being driven.
func (d *Driver) Emulator() *emu.Emulator {
	return d.emu
}

// Cycle returns the current cycle number.
func (d *Driver) Cycle() uint64 {
	return d.cycle
}

// Halted returns true once the program has exited.
func (d *Driver) Halted() bool {
	return d.halted
}

// ExitCode returns the exit code if the program has exited.
func (d *Driver) ExitCode() int64 {
	return d.exitCode
}

// Stats returns counters for the run so far.
func (d *Driver) Stats() Stats {
	return d.stats
}

// Tick retires one instruction and publishes it. It returns an error only
// when the emulator cannot make progress.
func (d *Driver) Tick() error {
	if d.halted {
		return nil
	}

	res := d.emu.Step()
	if res.Err != nil {
		return res.Err
	}

	ret := &res.Retirement
	for _, c := range ret.CSRWrites {
		d.publish(&commit.Entry{Kind: commit.KindCSRChange, Cycle: d.cycle, CSR: c})
	}
	if ret.MemOp == commit.MemAMO {
		d.publish(&commit.Entry{
			Kind:  commit.KindAMOWrite,
			Cycle: d.cycle,
			AMO:   commit.AMOWrite{Addr: ret.MemAddr, Data: ret.StoreData},
		})
	}

	ent := &commit.Entry{Kind: commit.KindCommit, Cycle: d.cycle, Event: ToEvent(ret)}
	d.publish(ent)

	d.stats.Commits++
	if ent.Event.Trapped() {
		d.stats.Traps++
	}

	d.cycle++
	d.stats.Cycles = d.cycle

	if res.Exited {
		d.halted = true
		d.exitCode = res.ExitCode
	}

	return nil
}

// Run ticks until the program exits, the cycle limit is reached, a stopper
// asks to stop or ctx is cancelled.
func (d *Driver) Run(ctx context.Context) (StopReason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return StopNone, err
		}

		if d.halted {
			return StopExited, nil
		}

		if d.maxCycles > 0 && d.cycle >= d.maxCycles {
			return StopMaxCycles, nil
		}

		if err := d.Tick(); err != nil {
			return StopNone, err
		}

		if stop, err := d.stopRequested(); stop {
			return StopRequested, err
		}
	}
}

// ToEvent converts an emulator retirement into the commit event the core
// would report for it.
func ToEvent(ret *emu.Retirement) commit.Event {
	ev := commit.Event{
		PC:          ret.PC,
		Inst:        ret.Inst,
		Dst:         ret.Rd,
		IntWrite:    ret.IntWrite,
		FloatWrite:  ret.FloatWrite,
		MemOp:       ret.MemOp,
		MemAddr:     ret.MemAddr,
		Priv:        ret.Priv,
		FFlagsWrite: ret.FFlagsWrite,
	}
	if ret.FloatWrite {
		ev.FDst = ret.Rd
	}

	if ret.MemOp == commit.MemStore {
		ev.SetScalar(ret.StoreData)
	} else {
		ev.SetScalar(ret.Value)
	}

	if !ret.Exception {
		return ev
	}

	// The core reports illegal CSR accesses on its own exception port.
	if csrAccess(ret.Inst) && ret.Cause == commit.CauseIllegalInstruction {
		ev.CSRException = true
		ev.CSRCause = ret.Cause
		ev.CSRTval = ret.Tval
		return ev
	}

	ev.Exception = true
	ev.Cause = ret.Cause
	ev.CSRTval = ret.Tval
	return ev
}

func csrAccess(inst uint32) bool {
	return inst&0x7f == insts.OpcodeSystem && (inst>>12)&0x7 != 0
}
