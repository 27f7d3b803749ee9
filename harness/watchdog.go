package harness

import (
	"fmt"
	"io"

	"github.com/sarchlab/rvcommit/commit"
)

// DefaultDeadlockCycles is how long the commit PC may stay unchanged before
// the watchdog warns.
const DefaultDeadlockCycles = 100000

// Watchdog warns when the core stops making forward progress, meaning no
// commit with a new PC for a whole window of cycles. It only warns; the
// run continues.
type Watchdog struct {
	window uint64
	out    io.Writer

	lastPC    uint64
	lastCycle uint64
	warnings  int
}

// NewWatchdog creates a Watchdog that writes warnings to out.
func NewWatchdog(window uint64, out io.Writer) *Watchdog {
	if window == 0 {
		window = DefaultDeadlockCycles
	}
	return &Watchdog{window: window, out: out}
}

// Observe records the commit seen at cycle. valid is false for cycles
// without a commit. It returns true when a warning was written.
func (w *Watchdog) Observe(cycle, pc uint64, valid bool) bool {
	pc = commit.SignExtend40(pc)

	if valid && pc != w.lastPC {
		w.lastPC = pc
		w.lastCycle = cycle
		return false
	}

	if cycle <= w.lastCycle+w.window {
		return false
	}

	fmt.Fprintf(w.out, "Deadlock with last valid commit PC: 0x%016x and cycle: %d\n", w.lastPC, w.lastCycle)
	w.lastCycle = cycle
	w.warnings++
	return true
}

// Warnings returns the number of warnings written.
func (w *Watchdog) Warnings() int {
	return w.warnings
}
