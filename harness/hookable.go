package harness

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvcommit/commit"
)

// Stopper is a hook, or any other observer, that can ask the run to end.
// When a stopper also has an Err method, its error is returned by Run.
type Stopper interface {
	Done() bool
}

type errorer interface {
	Err() error
}

// StopReason tells why a run ended.
type StopReason int

// Stop reasons.
const (
	StopNone StopReason = iota
	StopExited
	StopMaxCycles
	StopRequested
	StopEndOfStream
)

// String returns a short description of the reason.
func (r StopReason) String() string {
	switch r {
	case StopExited:
		return "program exited"
	case StopMaxCycles:
		return "cycle limit reached"
	case StopRequested:
		return "stop requested"
	case StopEndOfStream:
		return "end of stream"
	}
	return "running"
}

// Option configures a Driver or a Player.
type Option func(*runner)

// WithMaxCycles stops the run after n cycles. Zero means no limit.
func WithMaxCycles(n uint64) Option {
	return func(r *runner) {
		r.maxCycles = n
	}
}

// WithMutator lets callers alter each commit event before it is
// published.
func WithMutator(f func(cycle uint64, ev *commit.Event)) Option {
	return func(r *runner) {
		r.mutator = f
	}
}

// WithStopper registers an observer that can end the run.
func WithStopper(s Stopper) Option {
	return func(r *runner) {
		r.stoppers = append(r.stoppers, s)
	}
}

// WithWatchdog checks every commit for forward progress.
func WithWatchdog(w *Watchdog) Option {
	return func(r *runner) {
		r.watchdog = w
	}
}

var _ sim.Hookable = (*runner)(nil)

// runner holds what the live driver and the stream player share: the hook
// list and the stop conditions.
type runner struct {
	hooks []sim.Hook

	maxCycles uint64
	mutator   func(cycle uint64, ev *commit.Event)
	stoppers  []Stopper
	watchdog  *Watchdog

	published uint64
}

// AcceptHook registers a hook. Hooks see entries in registration order.
func (r *runner) AcceptHook(h sim.Hook) {
	r.hooks = append(r.hooks, h)
}

// NumHooks returns the number of registered hooks.
func (r *runner) NumHooks() int {
	return len(r.hooks)
}

// Hooks returns the registered hooks.
func (r *runner) Hooks() []sim.Hook {
	return r.hooks
}

// Published returns the number of entries handed to the hooks.
func (r *runner) Published() uint64 {
	return r.published
}

func (r *runner) publish(ent *commit.Entry) {
	if ent.Kind == commit.KindCommit {
		if r.mutator != nil {
			r.mutator(ent.Cycle, &ent.Event)
		}
		if r.watchdog != nil {
			r.watchdog.Observe(ent.Cycle, ent.Event.PC, true)
		}
	}

	ctx := sim.HookCtx{
		Domain: r,
		Pos:    commit.HookPosOf(ent.Kind),
		Item:   ent,
	}
	for _, h := range r.hooks {
		h.Func(ctx)
	}
	r.published++
}

// stopRequested reports whether a stopper asked to end the run, together
// with the first error a stopper reports.
func (r *runner) stopRequested() (bool, error) {
	for _, s := range r.stoppers {
		if !s.Done() {
			continue
		}
		if e, ok := s.(errorer); ok && e.Err() != nil {
			return true, e.Err()
		}
		return true, nil
	}
	return false, nil
}
