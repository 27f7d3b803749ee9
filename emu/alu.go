package emu

import (
	"math"
	"math/bits"

	"github.com/sarchlab/rvcommit/insts"
)

// ALU implements RV64I and RV64M arithmetic.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// Execute computes the result of an OP, OP-IMM, OP-32 or OP-IMM-32
// instruction. The second operand is the immediate for FormatI and rs2
// otherwise. Execute does not write the destination register.
func (a *ALU) Execute(inst *insts.Instruction) uint64 {
	op1 := a.regFile.ReadReg(inst.Rs1)
	op2 := a.regFile.ReadReg(inst.Rs2)
	if inst.Format == insts.FormatI {
		op2 = uint64(inst.Imm)
	}

	if inst.Is32Bit {
		return sext32(a.compute32(inst.Op, uint32(op1), uint32(op2)))
	}
	return a.compute64(inst.Op, op1, op2)
}

func (a *ALU) compute64(op insts.Op, x, y uint64) uint64 {
	switch op {
	case insts.OpADD, insts.OpADDI:
		return x + y
	case insts.OpSUB:
		return x - y
	case insts.OpSLL, insts.OpSLLI:
		return x << (y & 63)
	case insts.OpSRL, insts.OpSRLI:
		return x >> (y & 63)
	case insts.OpSRA, insts.OpSRAI:
		return uint64(int64(x) >> (y & 63))
	case insts.OpSLT, insts.OpSLTI:
		return boolToUint(int64(x) < int64(y))
	case insts.OpSLTU, insts.OpSLTIU:
		return boolToUint(x < y)
	case insts.OpXOR, insts.OpXORI:
		return x ^ y
	case insts.OpOR, insts.OpORI:
		return x | y
	case insts.OpAND, insts.OpANDI:
		return x & y
	case insts.OpMUL:
		return x * y
	case insts.OpMULH:
		return mulh(x, y)
	case insts.OpMULHSU:
		return mulhsu(x, y)
	case insts.OpMULHU:
		hi, _ := bits.Mul64(x, y)
		return hi
	case insts.OpDIV:
		return uint64(div64(int64(x), int64(y)))
	case insts.OpDIVU:
		if y == 0 {
			return math.MaxUint64
		}
		return x / y
	case insts.OpREM:
		return uint64(rem64(int64(x), int64(y)))
	case insts.OpREMU:
		if y == 0 {
			return x
		}
		return x % y
	}
	return 0
}

func (a *ALU) compute32(op insts.Op, x, y uint32) uint32 {
	switch op {
	case insts.OpADDW, insts.OpADDIW:
		return x + y
	case insts.OpSUBW:
		return x - y
	case insts.OpSLLW, insts.OpSLLIW:
		return x << (y & 31)
	case insts.OpSRLW, insts.OpSRLIW:
		return x >> (y & 31)
	case insts.OpSRAW, insts.OpSRAIW:
		return uint32(int32(x) >> (y & 31))
	case insts.OpMULW:
		return x * y
	case insts.OpDIVW:
		return uint32(div32(int32(x), int32(y)))
	case insts.OpDIVUW:
		if y == 0 {
			return math.MaxUint32
		}
		return x / y
	case insts.OpREMW:
		return uint32(rem32(int32(x), int32(y)))
	case insts.OpREMUW:
		if y == 0 {
			return x
		}
		return x % y
	}
	return 0
}

// mulh returns the high 64 bits of the signed 128-bit product.
func mulh(x, y uint64) uint64 {
	hi, _ := bits.Mul64(x, y)
	if int64(x) < 0 {
		hi -= y
	}
	if int64(y) < 0 {
		hi -= x
	}
	return hi
}

// mulhsu returns the high 64 bits of signed x times unsigned y.
func mulhsu(x, y uint64) uint64 {
	hi, _ := bits.Mul64(x, y)
	if int64(x) < 0 {
		hi -= y
	}
	return hi
}

func div64(x, y int64) int64 {
	switch {
	case y == 0:
		return -1
	case x == math.MinInt64 && y == -1:
		return x
	}
	return x / y
}

func rem64(x, y int64) int64 {
	switch {
	case y == 0:
		return x
	case x == math.MinInt64 && y == -1:
		return 0
	}
	return x % y
}

func div32(x, y int32) int32 {
	switch {
	case y == 0:
		return -1
	case x == math.MinInt32 && y == -1:
		return x
	}
	return x / y
}

func rem32(x, y int32) int32 {
	switch {
	case y == 0:
		return x
	case x == math.MinInt32 && y == -1:
		return 0
	}
	return x % y
}

func sext32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
