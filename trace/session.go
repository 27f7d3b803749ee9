// Package trace renders commit events into a Spike-compatible execution
// trace.
//
// A Session owns every piece of state that carries across events: the
// register signature, pending CSR changes, outstanding AMO values, the
// remembered fflags value and the deduplication reference. Callers push
// side-band updates (PushCSR, PushAMO) before the commit they annotate and
// then call Commit once per retirement.
package trace

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/insts"
)

// Disassembler turns an instruction word into assembly text.
type Disassembler interface {
	Disassemble(word uint32) string
}

// SymbolResolver maps an address to the symbol that starts there.
type SymbolResolver interface {
	SymbolAt(addr uint64) (string, bool)
}

// Syncer is implemented by trace writers that can force written data to
// stable storage.
type Syncer interface {
	Sync() error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHart sets the hart number printed in the line prefix.
func WithHart(hart int) SessionOption {
	return func(s *Session) {
		s.hart = hart
	}
}

// WithDisassembler replaces the built-in disassembler.
func WithDisassembler(d Disassembler) SessionOption {
	return func(s *Session) {
		s.disasm = d
	}
}

// WithSymbols enables ">>>>" symbol marker lines.
func WithSymbols(r SymbolResolver) SessionOption {
	return func(s *Session) {
		s.symbols = r
	}
}

// WithDebugAddr logs every retirement at addr to the log writer. Zero
// disables the watch.
func WithDebugAddr(addr uint64) SessionOption {
	return func(s *Session) {
		s.debugAddr = addr
	}
}

// WithLog sets the writer for diagnostic messages.
func WithLog(w io.Writer) SessionOption {
	return func(s *Session) {
		s.log = w
	}
}

// WithCycleStamp appends " Cycles N" to commit lines and exception blocks.
func WithCycleStamp(enabled bool) SessionOption {
	return func(s *Session) {
		s.cycleStamp = enabled
	}
}

// WithSpikeCommitFormat switches normal commits to Spike's two-line
// --log-commits shape: a line with the disassembly, then a commit line
// carrying the privilege level and fields but no disassembly.
func WithSpikeCommitFormat(enabled bool) SessionOption {
	return func(s *Session) {
		s.spikeFormat = enabled
	}
}

// Session is a single trace stream. It is not safe for concurrent use.
type Session struct {
	w    io.Writer
	log  io.Writer
	hart int

	disasm      Disassembler
	symbols     SymbolResolver
	debugAddr   uint64
	cycleStamp  bool
	spikeFormat bool

	enabled   bool
	signature Signature
	csrs      CSRBuffer
	amos      AMOQueue
	dedup     Deduper
	xcpt      *ExceptionEncoder
	prefix    string

	buf      bytes.Buffer
	rendered uint64
}

// NewSession creates an enabled session writing the trace to w.
func NewSession(w io.Writer, opts ...SessionOption) *Session {
	s := &Session{
		w:       w,
		log:     os.Stdout,
		disasm:  insts.NewDisassembler(),
		enabled: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.prefix = linePrefix(s.hart)
	s.xcpt = NewExceptionEncoder(s.hart)

	return s
}

// PushCSR records a CSR change for the next rendered commit.
func (s *Session) PushCSR(addr, value uint64) {
	s.csrs.Push(addr, value)
}

// PushAMO records the value an atomic operation wrote to memory.
func (s *Session) PushAMO(data uint64) {
	s.amos.Push(data)
}

// Enabled reports whether the session still writes trace output.
func (s *Session) Enabled() bool {
	return s.enabled
}

// Disable stops all further trace output. Side-band pushes are still
// accepted but never rendered.
func (s *Session) Disable() {
	s.enabled = false
}

// Signature returns the register signature store.
func (s *Session) Signature() *Signature {
	return &s.signature
}

// PendingCSRs returns the number of buffered CSR changes.
func (s *Session) PendingCSRs() int {
	return s.csrs.Len()
}

// PendingAMOs returns the number of unconsumed AMO values.
func (s *Session) PendingAMOs() int {
	return s.amos.Len()
}

// Rendered returns the number of commits written to the trace.
func (s *Session) Rendered() uint64 {
	return s.rendered
}

// Commit processes one retirement. It returns true when trace output was
// written and false when the session is disabled or the event repeats the
// previous one.
//
// Commit panics with ErrAMOUnderflow when an atomic commit arrives without a
// pushed AMO value.
func (s *Session) Commit(cycle uint64, ev *commit.Event) (bool, error) {
	s.watchDebugPC(cycle, ev)

	if !s.enabled {
		return false, nil
	}

	if ev.IntWrite || ev.FloatWrite {
		s.signature.Update(ev.Dst, ev.Scalar())
	}

	if s.dedup.Repeat(ev) {
		return false, nil
	}

	s.buf.Reset()
	s.render(cycle, ev)

	if err := s.flush(); err != nil {
		return false, err
	}

	s.rendered++
	return true, nil
}

// RefRetirement is what the reference model retired for a mismatching
// commit.
type RefRetirement struct {
	PC    uint64
	Inst  uint32
	Dst   uint8
	Value uint64
}

// WriteMismatch appends the hardware line for ev followed by the reference
// model's retirement. It does not consume any buffered CSR change or AMO
// value.
func (s *Session) WriteMismatch(cycle uint64, ev *commit.Event, ref RefRetirement) error {
	if !s.enabled {
		return nil
	}

	s.buf.Reset()

	fmt.Fprintf(&s.buf, "%s%d 0x%016x (0x%08x) %s", s.prefix,
		ev.Priv, ev.SignedPC(), ev.Inst, s.disasm.Disassemble(ev.Inst))
	if ev.IntWrite {
		fmt.Fprintf(&s.buf, " x%-2d 0x%016x", ev.Dst, ev.Scalar())
	}
	if ev.FloatWrite {
		fmt.Fprintf(&s.buf, " f%-2d 0x%016x", ev.Dst, ev.Scalar())
	}
	if ev.Trapped() {
		fmt.Fprintf(&s.buf, " exception %s", TrapName(ev.TrapCause()))
	}
	s.stamp(cycle)
	s.buf.WriteByte('\n')

	fmt.Fprintf(&s.buf, "spike: 0x%016x (0x%08x) %s\n", ref.PC, ref.Inst, s.disasm.Disassemble(ref.Inst))
	fmt.Fprintf(&s.buf, " x%-2d 0x%016x\n", ref.Dst, ref.Value)

	return s.flush()
}

func (s *Session) watchDebugPC(cycle uint64, ev *commit.Event) {
	writeDebugPC(s.log, s.debugAddr, cycle, ev)
}

func writeDebugPC(w io.Writer, addr, cycle uint64, ev *commit.Event) {
	if addr == 0 || ev.SignedPC() != addr {
		return
	}
	fmt.Fprintf(w, "Debug PC: 0x%016x executed on cycle: %d\n", addr, cycle)
}

func (s *Session) flush() error {
	if _, err := s.w.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}

	if syncer, ok := s.w.(Syncer); ok {
		if err := syncer.Sync(); err != nil {
			return fmt.Errorf("failed to sync trace: %w", err)
		}
	}

	return nil
}
