package insts

// Encoders for hand-built programs. Register arguments are register
// numbers; immediates are signed byte offsets or values and are truncated to
// the field width.

// Fixed encodings.
const (
	NOP    uint32 = 0x00000013
	ECALL  uint32 = 0x00000073
	EBREAK uint32 = 0x00100073
	MRET   uint32 = 0x30200073
	WFI    uint32 = 0x10500073
)

// EncodeR builds an R-type word.
func EncodeR(opcode, funct3, funct7 uint32, rd, rs1, rs2 uint8) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeI builds an I-type word.
func EncodeI(opcode, funct3 uint32, rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeS builds an S-type word.
func EncodeS(opcode, funct3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | (u&0x1f)<<7 | opcode
}

// EncodeB builds a B-type word.
func EncodeB(funct3 uint32, rs1, rs2 uint8, off int32) uint32 {
	u := uint32(off)
	return (u>>12&1)<<31 | (u>>5&0x3f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		funct3<<12 | (u>>1&0xf)<<8 | (u>>11&1)<<7 | OpcodeBranch
}

// EncodeJ builds a JAL word.
func EncodeJ(rd uint8, off int32) uint32 {
	u := uint32(off)
	return (u>>20&1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&1)<<20 | (u>>12&0xff)<<12 |
		uint32(rd)<<7 | OpcodeJAL
}

// ADDI encodes addi rd, rs1, imm.
func ADDI(rd, rs1 uint8, imm int32) uint32 {
	return EncodeI(OpcodeOpImm, 0, rd, rs1, imm)
}

// ADD encodes add rd, rs1, rs2.
func ADD(rd, rs1, rs2 uint8) uint32 {
	return EncodeR(OpcodeOp, 0, 0, rd, rs1, rs2)
}

// LUI encodes lui rd, imm20.
func LUI(rd uint8, imm20 uint32) uint32 {
	return imm20<<12 | uint32(rd)<<7 | OpcodeLUI
}

// Load encodes an integer load of the given funct3 width.
func Load(funct3 uint32, rd, rs1 uint8, off int32) uint32 {
	return EncodeI(OpcodeLoad, funct3, rd, rs1, off)
}

// Store encodes an integer store of the given funct3 width.
func Store(funct3 uint32, rs1, rs2 uint8, off int32) uint32 {
	return EncodeS(OpcodeStore, funct3, rs1, rs2, off)
}

// Atomic encodes an A-extension instruction. funct5 selects the
// operation; funct3 is 2 for .w and 3 for .d.
func Atomic(funct5, funct3 uint32, rd, rs1, rs2 uint8) uint32 {
	return EncodeR(OpcodeAMO, funct3, funct5<<2, rd, rs1, rs2)
}

// CSRRW encodes csrrw rd, csr, rs1.
func CSRRW(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(OpcodeSystem, 1, rd, rs1, int32(csr))
}

// CSRRS encodes csrrs rd, csr, rs1.
func CSRRS(rd uint8, csr uint16, rs1 uint8) uint32 {
	return EncodeI(OpcodeSystem, 2, rd, rs1, int32(csr))
}

// CSRRWI encodes csrrwi rd, csr, uimm.
func CSRRWI(rd uint8, csr uint16, uimm uint8) uint32 {
	return EncodeI(OpcodeSystem, 5, rd, uimm, int32(csr))
}
