package trace

import (
	"fmt"
	"io"
	"strconv"

	"github.com/sarchlab/rvcommit/commit"
)

// ToHostWrite is the encoding of "csrw 0x9f0, gp", the tohost write the
// core reports as an illegal instruction. Its tval is always printed as 0.
const ToHostWrite uint32 = 0x9f019073

var trapNames = map[uint64]string{
	commit.CauseMisalignedFetch:    "trap_misaligned_fetch",
	commit.CauseFaultFetch:         "trap_fault_fetch",
	commit.CauseIllegalInstruction: "trap_illegal_instruction",
	commit.CauseBreakpoint:         "trap_breakpoint",
	commit.CauseMisalignedLoad:     "trap_load_address_misaligned",
	commit.CauseFaultLoad:          "trap_fault_load",
	commit.CauseMisalignedStore:    "trap_store_address_misaligned",
	commit.CauseFaultStore:         "trap_fault_store",
	commit.CauseUserEcall:          "trap_user_ecall",
	commit.CauseSupervisorEcall:    "trap_supervisor_ecall",
	commit.CauseMachineEcall:       "trap_machine_ecall",
	commit.CauseInstrPageFault:     "trap_instruction_page_fault",
	commit.CauseLoadPageFault:      "trap_load_page_fault",
	commit.CauseStoreAMOPageFault:  "trap_store_page_fault",
}

// TrapName returns the reference simulator's name for a trap cause.
// Unknown causes are rendered as their decimal value.
func TrapName(cause uint64) string {
	if n, ok := trapNames[cause]; ok {
		return n
	}
	return strconv.FormatUint(cause, 10)
}

// ExceptionEncoder renders exception blocks.
type ExceptionEncoder struct {
	prefix string
}

// NewExceptionEncoder creates an encoder for the given hart.
func NewExceptionEncoder(hart int) *ExceptionEncoder {
	return &ExceptionEncoder{prefix: linePrefix(hart)}
}

// Render writes the exception line and, except for environment calls, the
// tval line.
func (x *ExceptionEncoder) Render(w io.Writer, cause, epc, tval uint64) error {
	if _, err := fmt.Fprintf(w, "%sexception %s, epc 0x%016x\n", x.prefix, TrapName(cause), epc); err != nil {
		return err
	}
	if commit.IsEcall(cause) {
		return nil
	}
	_, err := fmt.Fprintf(w, "%s          tval 0x%016x\n", x.prefix, tval)
	return err
}

// RenderException renders the exception block for hart 0.
func RenderException(w io.Writer, cause, epc, tval uint64) error {
	return NewExceptionEncoder(0).Render(w, cause, epc, tval)
}

// ExceptionTval returns the cause and trap value to print for a trapped
// event.
//
// Two overrides apply. The tohost write always reports tval 0. A
// CSR-raised exception with tval 0 reports the instruction word instead;
// this is a stopgap for a core that does not drive tval for CSR faults and
// applies to no other exception source.
func ExceptionTval(ev *commit.Event) (cause, tval uint64) {
	if ev.Exception {
		if ev.Inst == ToHostWrite {
			return ev.Cause, 0
		}
		return ev.Cause, ev.CSRTval
	}

	tval = ev.CSRTval
	if tval == 0 {
		tval = uint64(ev.Inst)
	}
	return ev.CSRCause, tval
}

func linePrefix(hart int) string {
	return fmt.Sprintf("core %3d: ", hart)
}
