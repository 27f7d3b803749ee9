package cosim

import (
	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/insts"
	"github.com/sarchlab/rvcommit/trace"
)

// Step is the state a patch sees while one commit is checked.
type Step struct {
	Cycle  uint64
	Event  *commit.Event
	Engine RefEngine

	// PC is the sign-extended PC of the commit.
	PC uint64

	// Trapped and Cause are the trap classification of the commit after
	// instruction-based reclassification.
	Trapped bool
	Cause   uint64

	// HWValue is the hardware writeback value that is compared. Patches
	// may adjust it.
	HWValue uint64

	// Observed is the reference retirement. It is only valid in After.
	Observed Observed
}

// Opcode returns bits [6:0] of the committed instruction.
func (s *Step) Opcode() uint32 {
	return s.Event.Inst & 0x7f
}

// CSR returns bits [31:20] of the committed instruction.
func (s *Step) CSR() uint16 {
	return uint16(s.Event.Inst >> 20)
}

// Rs1 returns bits [19:15] of the committed instruction.
func (s *Step) Rs1() uint8 {
	return uint8(s.Event.Inst>>15) & 0x1f
}

// Funct5 returns bits [31:27] of the committed instruction.
func (s *Step) Funct5() uint32 {
	return s.Event.Inst >> 27
}

// Patch suppresses one known divergence between the core's environment and
// the reference model's.
type Patch struct {
	Name  string
	Match func(*Step) bool

	// Substitute injects a NOP instead of the committed instruction. A
	// matching substitute patch is the only patch applied for that step.
	Substitute bool

	Before func(*Step)
	After  func(*Step)

	// SkipCompare disables the comparison for the step.
	SkipCompare bool
}

// Environment constants the default patches depend on.
const (
	ToHostCSRWrite uint32 = 0x9f051073 // csrw 0x9f0, a0
	RdTimeFirst    uint32 = 0xc0102073 // rdtime zero
	RdTimeLast     uint32 = 0xc0102ff3 // rdtime t6

	// TimerReenablePC is where the boot code turns timer interrupts back
	// on.
	TimerReenablePC uint64 = 0x800032d0
	// MStatusFixupPC retires a write the core reports with a different
	// mstatus image.
	MStatusFixupPC    uint64 = 0x8000d338
	MStatusFixupValue uint64 = 0x8000000a00006600

	mstatusReservedBits uint64 = 0x600
)

// TimerStorePCs are stores to the platform timer, which the reference
// model does not implement.
var TimerStorePCs = []uint64{
	0x8000577c, 0x80005780, 0x800057e4, 0x800057ec, 0x80005810, 0x80005814,
}

// DefaultPatches returns the patch table for the standard test
// environment, in evaluation order.
func DefaultPatches() []Patch {
	timerStores := make(map[uint64]bool, len(TimerStorePCs))
	for _, pc := range TimerStorePCs {
		timerStores[pc] = true
	}

	return []Patch{
		{
			Name:        "tohost-csr-write",
			Match:       func(s *Step) bool { return s.Event.Inst == ToHostCSRWrite },
			Substitute:  true,
			SkipCompare: true,
		},
		{
			Name: "rdtime",
			Match: func(s *Step) bool {
				return s.Event.Inst >= RdTimeFirst && s.Event.Inst <= RdTimeLast
			},
			Substitute: true,
			After: func(s *Step) {
				s.Engine.WriteRegister(s.Event.Dst, s.HWValue)
			},
			SkipCompare: true,
		},
		{
			Name:        "timer-store",
			Match:       func(s *Step) bool { return timerStores[s.PC] },
			Substitute:  true,
			SkipCompare: true,
		},
		{
			Name: "timer-interrupt",
			Match: func(s *Step) bool {
				return s.Trapped && s.Cause == commit.CauseMachineTimerInterrupt
			},
			Before: func(s *Step) {
				mip := s.Engine.ReadCSR(insts.CSRMIP)
				s.Engine.WriteCSR(insts.CSRMIP, mip|emu.MIPMTIP)
			},
		},
		{
			Name:  "timer-reenable",
			Match: func(s *Step) bool { return s.PC == TimerReenablePC },
			Before: func(s *Step) {
				mip := s.Engine.ReadCSR(insts.CSRMIP)
				s.Engine.WriteCSR(insts.CSRMIP, mip&^emu.MIPMTIP)
			},
		},
		{
			Name: "mstatus-read",
			Match: func(s *Step) bool {
				return s.Opcode() == insts.OpcodeSystem && s.Event.Funct3() == 0x2 && s.CSR() == insts.CSRMStatus
			},
			After: func(s *Step) {
				s.Engine.WriteRegister(s.Event.Dst, s.HWValue|mstatusReservedBits)
				s.HWValue &^= mstatusReservedBits
			},
		},
		{
			Name:  "mstatus-fixup",
			Match: func(s *Step) bool { return s.PC == MStatusFixupPC },
			After: func(s *Step) {
				s.Engine.WriteRegister(22, MStatusFixupValue)
			},
		},
		{
			Name: "pmpaddr0-read",
			Match: func(s *Step) bool {
				return s.Opcode() == insts.OpcodeSystem && s.Event.Funct3() == 0x2 &&
					s.Rs1() == 0 && s.CSR() == insts.CSRPMPAddr0
			},
			After: func(s *Step) {
				s.Engine.WriteRegister(16, 0)
			},
			SkipCompare: true,
		},
		{
			Name: "lr-sc",
			Match: func(s *Step) bool {
				return s.Opcode() == insts.OpcodeAMO && (s.Funct5() == 0x2 || s.Funct5() == 0x3)
			},
			After:       mirrorReservation,
			SkipCompare: true,
		},
	}
}

// mirrorReservation forces the reference model to the core's LR/SC
// outcome. When the core's SC succeeded but the reference model's failed,
// the store is replayed into the reference model's memory.
func mirrorReservation(s *Step) {
	s.Engine.WriteRegister(s.Event.Dst, s.HWValue)

	if s.Funct5() != 0x3 || s.HWValue != 0 || s.Observed.DstValue == 0 {
		return
	}

	size := 8
	if s.Event.Funct3() == 0x2 {
		size = 4
	}
	s.Engine.WriteMemory(s.Observed.Src1Value, s.Observed.Src2Value, size)
}

// classifyTrap reports the trap state of ev. The core does not flag
// environment calls, breakpoints and the tohost write as traps, so they
// are recognized by their encoding.
func classifyTrap(ev *commit.Event) (bool, uint64) {
	trapped, cause := ev.Trapped(), ev.TrapCause()

	switch ev.Inst {
	case insts.ECALL:
		trapped = true
		switch ev.Priv {
		case emu.PrivUser:
			cause = commit.CauseUserEcall
		case emu.PrivSupervisor:
			cause = commit.CauseSupervisorEcall
		}
	case insts.EBREAK:
		trapped, cause = true, commit.CauseBreakpoint
	case trace.ToHostWrite:
		trapped, cause = true, commit.CauseIllegalInstruction
	}

	return trapped, cause
}
