package cosim

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvcommit/commit"
)

// A Hook checks every published commit with a Detector.
type Hook struct {
	detector *Detector
	err      error
}

// NewHook creates a hook bound to d.
func NewHook(d *Detector) *Hook {
	return &Hook{detector: d}
}

// Func checks a commit entry. Other entries are ignored.
func (h *Hook) Func(ctx sim.HookCtx) {
	if ctx.Pos != commit.HookPosCommit || h.detector.Halted() || h.err != nil {
		return
	}

	ent, ok := ctx.Item.(*commit.Entry)
	if !ok {
		return
	}

	_, h.err = h.detector.Check(ent.Cycle, &ent.Event)
}

// Err returns the first error reported by the detector.
func (h *Hook) Err() error {
	return h.err
}

// Done reports whether the run should stop.
func (h *Hook) Done() bool {
	return h.detector.Done() || h.err != nil
}
