package trace

import (
	"fmt"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/insts"
)

// mstatusVersionBits are the mstatus bits the core and the reference model
// disagree on (privileged ISA 1.11 vs 1.12). They are dropped before
// printing.
const mstatusVersionBits = 0x600

var vectorTags = map[commit.SEW]string{
	commit.SEW8:  " e8 m1 l16",
	commit.SEW16: " e16 m1 l8",
	commit.SEW32: " e32 m1 l4",
	commit.SEW64: " e64 m1 l2",
}

func (s *Session) render(cycle uint64, ev *commit.Event) {
	if s.symbols != nil {
		if sym, ok := s.symbols.SymbolAt(ev.PC); ok {
			fmt.Fprintf(&s.buf, "%s>>>>  %s\n", s.prefix, sym)
		}
	}

	if ev.Trapped() {
		s.renderTrap(cycle, ev)
		return
	}

	s.renderCommit(cycle, ev)
}

func (s *Session) renderTrap(cycle uint64, ev *commit.Event) {
	if !(ev.Exception && ev.Cause == commit.CauseInstrPageFault) {
		s.writeHeader(ev)
	}

	cause, tval := ExceptionTval(ev)
	// Writes to a bytes.Buffer do not fail.
	_ = s.xcpt.Render(&s.buf, cause, ev.PC, tval)

	if s.cycleStamp {
		fmt.Fprintf(&s.buf, " Cycles %d\n", cycle)
	}

	if ev.CSRException {
		s.csrs.Clear()
	}
}

func (s *Session) writeHeader(ev *commit.Event) {
	fmt.Fprintf(&s.buf, "%s0x%016x (0x%08x) %s\n",
		s.prefix, ev.PC, ev.Inst, s.disasm.Disassemble(ev.Inst))
}

func (s *Session) renderCommit(cycle uint64, ev *commit.Event) {
	if s.spikeFormat {
		s.writeHeader(ev)
		fmt.Fprintf(&s.buf, "%s%d 0x%016x (0x%08x)", s.prefix, ev.Priv, ev.PC, ev.Inst)
	} else {
		fmt.Fprintf(&s.buf, "%s%d 0x%016x (0x%08x) %s",
			s.prefix, ev.Priv, ev.PC, ev.Inst, s.disasm.Disassemble(ev.Inst))
	}

	if flags, ok := s.csrs.DrainFFlags(ev.FFlagsWrite); ok {
		fmt.Fprintf(&s.buf, " c1_fflags 0x%016x", flags)
	}

	if ev.IntWrite {
		fmt.Fprintf(&s.buf, " x%-2d 0x%016x", ev.Dst, s.signature.Read(ev.Dst))
	}
	if ev.FloatWrite {
		fmt.Fprintf(&s.buf, " f%-2d 0x%016x", ev.Dst, s.signature.Read(ev.Dst))
	}

	if ev.VectorWrite || vectorShaped(ev.Inst) {
		s.writeVector(ev)
	}

	for _, c := range s.csrs.DrainRemaining() {
		s.writeCSR(c)
	}

	s.writeMemory(ev)
	s.stamp(cycle)
	s.buf.WriteByte('\n')
}

// vectorShaped reports whether inst is a vector arithmetic or vector store
// instruction the core retires without a register write.
func vectorShaped(inst uint32) bool {
	opcode := inst & 0x7f
	funct3 := (inst >> 12) & 0x7
	funct6 := (inst >> 26) & 0x3f

	switch {
	case opcode == 0x57 && funct3 == 0x2 && funct6 == 0x0c:
		return true
	case opcode == 0x27 && funct3 == 0x7:
		return true
	}
	return false
}

func (s *Session) writeVector(ev *commit.Event) {
	s.buf.WriteString(vectorTags[ev.SEW])

	if !ev.VectorWrite {
		return
	}

	fmt.Fprintf(&s.buf, " v%-2d 0x", ev.VDst)
	for i := commit.PayloadWords - 1; i >= 0; i-- {
		fmt.Fprintf(&s.buf, "%08x", ev.Data[i])
	}
}

func (s *Session) writeCSR(c commit.CSRChange) {
	switch c.Addr {
	case uint64(insts.CSRFFlags):
	case uint64(insts.CSRMStatus):
		fmt.Fprintf(&s.buf, " c%03d_%s 0x%016x", c.Addr, insts.CSRName(c.Addr), c.Value&^mstatusVersionBits)
	case uint64(insts.CSRFCSR):
		fmt.Fprintf(&s.buf, " c1_fflags 0x%016x", c.Value&0x1f)
		fmt.Fprintf(&s.buf, " c2_frm 0x%016x", (c.Value>>5)&0x7)
	default:
		fmt.Fprintf(&s.buf, " c%03d_%s 0x%016x", c.Addr, insts.CSRName(c.Addr), c.Value)
	}
}

func (s *Session) writeMemory(ev *commit.Event) {
	addr := ev.SignedMemAddr()

	switch ev.MemOp {
	case commit.MemLoad:
		fmt.Fprintf(&s.buf, " mem 0x%016x", addr)
	case commit.MemStore:
		fmt.Fprintf(&s.buf, " mem 0x%016x ", addr)
		writeSized(s, ev.Funct3(), ev.Scalar())
	case commit.MemAMO:
		amo := s.amos.Pop()
		fmt.Fprintf(&s.buf, " mem 0x%016x mem 0x%016x ", addr, addr)
		if ev.Funct3() == 0x2 {
			fmt.Fprintf(&s.buf, "0x%08x", uint32(amo))
		} else {
			fmt.Fprintf(&s.buf, "0x%016x", amo)
		}
	}
}

// writeSized prints store data at the width selected by the funct3 field.
func writeSized(s *Session, funct3 uint32, v uint64) {
	switch funct3 {
	case 0x0, 0x4:
		fmt.Fprintf(&s.buf, "0x%02x", uint8(v))
	case 0x1, 0x5:
		fmt.Fprintf(&s.buf, "0x%04x", uint16(v))
	case 0x2:
		fmt.Fprintf(&s.buf, "0x%08x", uint32(v))
	default:
		fmt.Fprintf(&s.buf, "0x%016x", v)
	}
}

func (s *Session) stamp(cycle uint64) {
	if s.cycleStamp {
		fmt.Fprintf(&s.buf, " Cycles %d", cycle)
	}
}
