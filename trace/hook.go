package trace

import (
	"io"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvcommit/commit"
)

// A Hook feeds the entries a driver publishes into a Session.
type Hook struct {
	session *Session
	err     error
}

// NewHook creates a hook bound to s.
func NewHook(s *Session) *Hook {
	return &Hook{session: s}
}

// Func dispatches one published entry.
func (h *Hook) Func(ctx sim.HookCtx) {
	ent, ok := ctx.Item.(*commit.Entry)
	if !ok || h.err != nil {
		return
	}

	switch ctx.Pos {
	case commit.HookPosCSRChange:
		h.session.PushCSR(ent.CSR.Addr, ent.CSR.Value)
	case commit.HookPosAMOWrite:
		h.session.PushAMO(ent.AMO.Data)
	case commit.HookPosCommit:
		_, h.err = h.session.Commit(ent.Cycle, &ent.Event)
	}
}

// Err returns the first trace write error.
func (h *Hook) Err() error {
	return h.err
}

// Done reports whether tracing failed and the run should stop.
func (h *Hook) Done() bool {
	return h.err != nil
}

// DebugWatch logs every commit at one PC without a trace stream behind it.
type DebugWatch struct {
	addr uint64
	log  io.Writer
}

// NewDebugWatch creates a watch for addr, compared against the sign-extended
// commit PC.
func NewDebugWatch(addr uint64, log io.Writer) *DebugWatch {
	return &DebugWatch{addr: addr, log: log}
}

// Func checks one published commit.
func (w *DebugWatch) Func(ctx sim.HookCtx) {
	ent, ok := ctx.Item.(*commit.Entry)
	if !ok || ctx.Pos != commit.HookPosCommit {
		return
	}
	writeDebugPC(w.log, w.addr, ent.Cycle, &ent.Event)
}
