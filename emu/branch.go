package emu

import "github.com/sarchlab/rvcommit/insts"

// BranchUnit implements RISC-V control transfers.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Taken evaluates the condition of a conditional branch.
func (b *BranchUnit) Taken(inst *insts.Instruction) bool {
	x := b.regFile.ReadReg(inst.Rs1)
	y := b.regFile.ReadReg(inst.Rs2)

	switch inst.Op {
	case insts.OpBEQ:
		return x == y
	case insts.OpBNE:
		return x != y
	case insts.OpBLT:
		return int64(x) < int64(y)
	case insts.OpBGE:
		return int64(x) >= int64(y)
	case insts.OpBLTU:
		return x < y
	case insts.OpBGEU:
		return x >= y
	}
	return false
}

// Target returns the destination of a branch, JAL or JALR located at pc.
// JALR clears bit 0 of the computed address.
func (b *BranchUnit) Target(inst *insts.Instruction, pc uint64) uint64 {
	if inst.Op == insts.OpJALR {
		return (b.regFile.ReadReg(inst.Rs1) + uint64(inst.Imm)) &^ 1
	}
	return pc + uint64(inst.Imm)
}
