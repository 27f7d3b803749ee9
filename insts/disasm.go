package insts

import (
	"fmt"
	"strings"
)

// XPRNames are the ABI names of the integer registers.
var XPRNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// FPRNames are the ABI names of the floating-point registers.
var FPRNames = [32]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

// Disassembler renders instruction words the way the reference ISA
// simulator does: the mnemonic is padded to eight columns and operands use
// ABI register names.
type Disassembler struct {
	decoder *Decoder
}

// NewDisassembler creates a Disassembler.
func NewDisassembler() *Disassembler {
	return &Disassembler{decoder: NewDecoder()}
}

var defaultDisassembler = NewDisassembler()

// Disassemble renders word with the package's default disassembler.
func Disassemble(word uint32) string {
	return defaultDisassembler.Disassemble(word)
}

// Disassemble renders one instruction word.
func (d *Disassembler) Disassemble(word uint32) string {
	inst := d.decoder.Decode(word)
	rd, rs1, rs2 := XPRNames[inst.Rd], XPRNames[inst.Rs1], XPRNames[inst.Rs2]
	name := inst.Op.String()

	switch inst.Format {
	case FormatU:
		return asm(name, rd, fmt.Sprintf("0x%x", (uint64(inst.Imm)>>12)&0xfffff))
	case FormatJ:
		return disasmJAL(inst)
	case FormatJALR:
		return disasmJALR(inst)
	case FormatBranch:
		if inst.Rs2 == 0 && (inst.Op == OpBEQ || inst.Op == OpBNE) {
			return asm(name+"z", rs1, pcRel(inst.Imm))
		}
		return asm(name, rs1, rs2, pcRel(inst.Imm))
	case FormatLoad:
		return asm(name, rd, memOperand(inst))
	case FormatStore:
		return asm(name, rs2, memOperand(inst))
	case FormatFPLoad:
		return asm(name, FPRNames[inst.Rd], memOperand(inst))
	case FormatFPStore:
		return asm(name, FPRNames[inst.Rs2], memOperand(inst))
	case FormatI:
		return disasmImm(inst)
	case FormatR:
		return asm(name, rd, rs1, rs2)
	case FormatAtomic:
		return disasmAtomic(inst)
	case FormatCSR:
		return disasmCSR(inst)
	case FormatCSRImm:
		return disasmCSRImm(inst)
	case FormatSystem, FormatFence:
		if inst.Op == OpSFENCEVMA {
			return asm(name, rs1, rs2)
		}
		return name
	}

	return "unknown"
}

func disasmJAL(inst *Instruction) string {
	switch inst.Rd {
	case 0:
		return asm("j", pcRel(inst.Imm))
	case 1:
		return asm("jal", pcRel(inst.Imm))
	}
	return asm("jal", XPRNames[inst.Rd], pcRel(inst.Imm))
}

func disasmJALR(inst *Instruction) string {
	switch {
	case inst.Rd == 0 && inst.Rs1 == 1 && inst.Imm == 0:
		return "ret"
	case inst.Rd == 0 && inst.Imm == 0:
		return asm("jr", XPRNames[inst.Rs1])
	case inst.Rd == 1 && inst.Imm == 0:
		return asm("jalr", XPRNames[inst.Rs1])
	}
	return asm("jalr", XPRNames[inst.Rd], memOperand(inst))
}

func disasmImm(inst *Instruction) string {
	rd, rs1 := XPRNames[inst.Rd], XPRNames[inst.Rs1]

	switch inst.Op {
	case OpADDI:
		switch {
		case inst.Raw == 0x00000013:
			return "nop"
		case inst.Rs1 == 0:
			return asm("li", rd, fmt.Sprint(inst.Imm))
		case inst.Imm == 0:
			return asm("mv", rd, rs1)
		}
	case OpADDIW:
		if inst.Imm == 0 {
			return asm("sext.w", rd, rs1)
		}
	}

	return asm(inst.Op.String(), rd, rs1, fmt.Sprint(inst.Imm))
}

func disasmAtomic(inst *Instruction) string {
	name := inst.Op.String()
	if inst.Is32Bit {
		name += ".w"
	} else {
		name += ".d"
	}
	if inst.Aq {
		name += ".aq"
	}
	if inst.Rl {
		name += ".rl"
	}

	base := "(" + XPRNames[inst.Rs1] + ")"
	if inst.Op == OpLR {
		return asm(name, XPRNames[inst.Rd], base)
	}
	return asm(name, XPRNames[inst.Rd], XPRNames[inst.Rs2], base)
}

func disasmCSR(inst *Instruction) string {
	rd, rs1 := XPRNames[inst.Rd], XPRNames[inst.Rs1]
	csr := CSRName(uint64(inst.CSR))

	switch {
	case inst.Op == OpCSRRS && inst.Rs1 == 0:
		return asm("csrr", rd, csr)
	case inst.Op == OpCSRRW && inst.Rd == 0:
		return asm("csrw", csr, rs1)
	case inst.Op == OpCSRRS && inst.Rd == 0:
		return asm("csrs", csr, rs1)
	case inst.Op == OpCSRRC && inst.Rd == 0:
		return asm("csrc", csr, rs1)
	}
	return asm(inst.Op.String(), rd, csr, rs1)
}

func disasmCSRImm(inst *Instruction) string {
	csr := CSRName(uint64(inst.CSR))
	imm := fmt.Sprint(inst.Imm)

	if inst.Rd == 0 {
		switch inst.Op {
		case OpCSRRWI:
			return asm("csrwi", csr, imm)
		case OpCSRRSI:
			return asm("csrsi", csr, imm)
		case OpCSRRCI:
			return asm("csrci", csr, imm)
		}
	}
	return asm(inst.Op.String(), XPRNames[inst.Rd], csr, imm)
}

func memOperand(inst *Instruction) string {
	return fmt.Sprintf("%d(%s)", inst.Imm, XPRNames[inst.Rs1])
}

func pcRel(off int64) string {
	if off < 0 {
		return fmt.Sprintf("pc - %d", -off)
	}
	return fmt.Sprintf("pc + %d", off)
}

func asm(name string, args ...string) string {
	pad := 8 - len(name)
	if pad < 1 {
		pad = 1
	}
	return name + strings.Repeat(" ", pad) + strings.Join(args, ", ")
}
