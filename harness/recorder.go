package harness

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvcommit/commit"
)

// A Recorder is a hook that appends every published entry to an event
// stream, so that a run can be replayed by a Player.
type Recorder struct {
	w       *commit.StreamWriter
	entries uint64
	err     error
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w *commit.StreamWriter) *Recorder {
	return &Recorder{w: w}
}

// Func writes one entry.
func (r *Recorder) Func(ctx sim.HookCtx) {
	ent, ok := ctx.Item.(*commit.Entry)
	if !ok || r.err != nil {
		return
	}

	switch ent.Kind {
	case commit.KindCommit:
		r.err = r.w.WriteCommit(ent.Cycle, &ent.Event)
	case commit.KindCSRChange:
		r.err = r.w.WriteCSRChange(ent.Cycle, ent.CSR)
	case commit.KindAMOWrite:
		r.err = r.w.WriteAMOWrite(ent.Cycle, ent.AMO)
	default:
		return
	}

	if r.err == nil {
		r.entries++
	}
}

// Entries returns the number of entries written.
func (r *Recorder) Entries() uint64 {
	return r.entries
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	return r.err
}

// Done reports whether recording failed.
func (r *Recorder) Done() bool {
	return r.err != nil
}
