package cosim

import (
	"errors"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/insts"
	"github.com/sarchlab/rvcommit/trace"
)

// ErrHalted is returned by Check once the mismatch limit was reached.
var ErrHalted = errors.New("cosim: reference model halted")

// DefaultMaxMismatches is the mismatch limit used when none is configured.
const DefaultMaxMismatches = 0x1000

// DefaultBootROMEnd is the last PC of the boot ROM. The reference model
// does not execute the boot ROM, so commits at or below it are not checked.
const DefaultBootROMEnd = 0x110

// Result describes what Check did with one commit.
type Result struct {
	// Duplicate is set when the commit repeated the previous one and was
	// ignored.
	Duplicate bool
	// Stepped is set when the reference model executed an instruction.
	Stepped  bool
	Compared bool
	Mismatch bool

	Patches  []string
	Observed Observed
}

// Mismatch records one divergence.
type Mismatch struct {
	Cycle    uint64
	Event    commit.Event
	HWValue  uint64
	Observed Observed
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithMaxMismatches sets how many mismatches are tolerated before the
// reference model is halted. Zero disables comparison altogether.
func WithMaxMismatches(n uint64) DetectorOption {
	return func(d *Detector) {
		d.maxMismatches = n
	}
}

// WithTrace makes mismatches appear in the trace. When the limit is hit the
// session is disabled.
func WithTrace(s *trace.Session) DetectorOption {
	return func(d *Detector) {
		d.trace = s
	}
}

// WithPatches replaces the default patch table.
func WithPatches(p []Patch) DetectorOption {
	return func(d *Detector) {
		d.patches = p
	}
}

// WithBootROMEnd sets the highest PC that is not checked.
func WithBootROMEnd(pc uint64) DetectorOption {
	return func(d *Detector) {
		d.bootROMEnd = pc
	}
}

// Detector steps a reference model once per commit and compares the
// results. It is not safe for concurrent use.
type Detector struct {
	engine        RefEngine
	trace         *trace.Session
	patches       []Patch
	maxMismatches uint64
	bootROMEnd    uint64

	dedup      trace.Deduper
	mismatches uint64
	first      *Mismatch
	halted     bool
}

// NewDetector creates a detector driving engine, which must already be
// initialized.
func NewDetector(engine RefEngine, opts ...DetectorOption) *Detector {
	d := &Detector{
		engine:        engine,
		patches:       DefaultPatches(),
		maxMismatches: DefaultMaxMismatches,
		bootROMEnd:    DefaultBootROMEnd,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Mismatches returns the number of divergences recorded so far.
func (d *Detector) Mismatches() uint64 {
	return d.mismatches
}

// FirstMismatch returns the first recorded divergence.
func (d *Detector) FirstMismatch() (Mismatch, bool) {
	if d.first == nil {
		return Mismatch{}, false
	}
	return *d.first, true
}

// Halted reports whether the mismatch limit was reached.
func (d *Detector) Halted() bool {
	return d.halted
}

// Done reports whether the run should stop.
func (d *Detector) Done() bool {
	return d.halted
}

// Check advances the reference model past ev and compares the outcome.
func (d *Detector) Check(cycle uint64, ev *commit.Event) (Result, error) {
	if d.halted {
		return Result{}, ErrHalted
	}

	if d.dedup.Repeat(ev) {
		return Result{Duplicate: true}, nil
	}

	st := &Step{
		Cycle:   cycle,
		Event:   ev,
		Engine:  d.engine,
		PC:      ev.SignedPC(),
		HWValue: ev.Scalar(),
	}
	if st.PC <= d.bootROMEnd {
		return Result{}, nil
	}
	st.Trapped, st.Cause = classifyTrap(ev)

	patches, substitute := d.match(st)
	res := Result{Stepped: true}

	for _, p := range patches {
		res.Patches = append(res.Patches, p.Name)
		if p.Before != nil {
			p.Before(st)
		}
	}

	word := ev.Inst
	if substitute {
		word = insts.NOP
	}
	st.Observed = d.engine.StepAndInject(word)
	res.Observed = st.Observed

	skip := substitute
	for _, p := range patches {
		if p.After != nil {
			p.After(st)
		}
		skip = skip || p.SkipCompare
	}

	if skip || d.maxMismatches == 0 || allowedTrap(st) {
		return res, nil
	}

	res.Compared = true
	if !diverges(st) {
		return res, nil
	}

	res.Mismatch = true
	return res, d.record(st)
}

func (d *Detector) match(st *Step) ([]*Patch, bool) {
	var matched []*Patch
	for i := range d.patches {
		p := &d.patches[i]
		if !p.Match(st) {
			continue
		}
		if p.Substitute {
			return []*Patch{p}, true
		}
		matched = append(matched, p)
	}
	return matched, false
}

// allowedTrap reports whether the commit is a timer interrupt, whose
// timing the reference model cannot reproduce.
func allowedTrap(st *Step) bool {
	if !st.Trapped {
		return false
	}
	return st.Cause == commit.CauseMachineTimerInterrupt ||
		st.Cause == commit.CauseSupervisorTimerInterrupt
}

func diverges(st *Step) bool {
	ev, obs := st.Event, st.Observed

	if st.PC != obs.PC || ev.Inst != obs.Inst || ev.Dst != obs.Dst {
		return true
	}
	return (ev.IntWrite || ev.FloatWrite) && st.HWValue != obs.DstValue
}

func (d *Detector) record(st *Step) error {
	d.mismatches++

	m := Mismatch{
		Cycle:    st.Cycle,
		Event:    *st.Event,
		HWValue:  st.HWValue,
		Observed: st.Observed,
	}
	if d.first == nil {
		d.first = &m
	}

	var err error
	if d.trace != nil {
		hw := *st.Event
		hw.SetScalar(st.HWValue)
		if st.Trapped && !hw.Trapped() {
			hw.Exception, hw.Cause = true, st.Cause
		}
		err = d.trace.WriteMismatch(st.Cycle, &hw, trace.RefRetirement{
			PC:    st.Observed.PC,
			Inst:  st.Observed.Inst,
			Dst:   st.Observed.Dst,
			Value: st.Observed.DstValue,
		})
	}

	if d.mismatches == d.maxMismatches {
		d.engine.Halt()
		d.halted = true
		if d.trace != nil {
			d.trace.Disable()
		}
	}

	return err
}
