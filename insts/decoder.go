package insts

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR              // Register-register ALU
	FormatI              // Register-immediate ALU
	FormatLoad           // Integer load
	FormatStore          // Integer store
	FormatBranch         // Conditional branch
	FormatU              // LUI / AUIPC
	FormatJ              // JAL
	FormatJALR           // JALR
	FormatAtomic         // LR / SC / AMO
	FormatCSR            // CSR access with register source
	FormatCSRImm         // CSR access with 5-bit immediate source
	FormatSystem         // ECALL, EBREAK, xRET, WFI, SFENCE.VMA
	FormatFence          // FENCE / FENCE.I
	FormatFPLoad         // FLW / FLD
	FormatFPStore        // FSW / FSD
)

// Major opcodes (bits [6:0]).
const (
	OpcodeLoad    = 0x03
	OpcodeLoadFP  = 0x07
	OpcodeMiscMem = 0x0f
	OpcodeOpImm   = 0x13
	OpcodeAUIPC   = 0x17
	OpcodeOpImm32 = 0x1b
	OpcodeStore   = 0x23
	OpcodeStoreFP = 0x27
	OpcodeAMO     = 0x2f
	OpcodeOp      = 0x33
	OpcodeLUI     = 0x37
	OpcodeOp32    = 0x3b
	OpcodeOpV     = 0x57
	OpcodeBranch  = 0x63
	OpcodeJALR    = 0x67
	OpcodeJAL     = 0x6f
	OpcodeSystem  = 0x73
)

// Instruction represents a decoded RISC-V instruction.
type Instruction struct {
	Op     Op     // Operation
	Format Format // Encoding format
	Raw    uint32 // Original instruction word

	Rd     uint8 // Destination register
	Rs1    uint8 // First source register
	Rs2    uint8 // Second source register
	Funct3 uint8

	// Imm is the sign-extended immediate. For U-type it holds the
	// already-shifted value (imm20 << 12); for CSR immediates it holds
	// the zero-extended uimm5.
	Imm int64
	CSR uint16

	Is32Bit bool // W-form ALU ops and .w atomics
	Aq, Rl  bool
}

// Decoder decodes RISC-V machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RISC-V instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit RISC-V instruction word.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Op:     OpUnknown,
		Format: FormatUnknown,
		Raw:    word,
		Rd:     uint8((word >> 7) & 0x1f),
		Rs1:    uint8((word >> 15) & 0x1f),
		Rs2:    uint8((word >> 20) & 0x1f),
		Funct3: uint8((word >> 12) & 0x7),
	}

	switch word & 0x7f {
	case OpcodeLUI:
		inst.Op, inst.Format, inst.Imm = OpLUI, FormatU, immU(word)
	case OpcodeAUIPC:
		inst.Op, inst.Format, inst.Imm = OpAUIPC, FormatU, immU(word)
	case OpcodeJAL:
		inst.Op, inst.Format, inst.Imm = OpJAL, FormatJ, immJ(word)
	case OpcodeJALR:
		if inst.Funct3 == 0 {
			inst.Op, inst.Format, inst.Imm = OpJALR, FormatJALR, immI(word)
		}
	case OpcodeBranch:
		d.decodeBranch(word, inst)
	case OpcodeLoad:
		d.decodeLoad(word, inst)
	case OpcodeStore:
		d.decodeStore(word, inst)
	case OpcodeOpImm:
		d.decodeOpImm(word, inst)
	case OpcodeOpImm32:
		d.decodeOpImm32(word, inst)
	case OpcodeOp:
		d.decodeOp(word, inst)
	case OpcodeOp32:
		d.decodeOp32(word, inst)
	case OpcodeAMO:
		d.decodeAtomic(word, inst)
	case OpcodeMiscMem:
		d.decodeFence(inst)
	case OpcodeSystem:
		d.decodeSystem(word, inst)
	case OpcodeLoadFP:
		d.decodeFPLoad(word, inst)
	case OpcodeStoreFP:
		d.decodeFPStore(word, inst)
	}

	return inst
}

func (d *Decoder) decodeBranch(word uint32, inst *Instruction) {
	ops := [8]Op{OpBEQ, OpBNE, OpUnknown, OpUnknown, OpBLT, OpBGE, OpBLTU, OpBGEU}
	if op := ops[inst.Funct3]; op != OpUnknown {
		inst.Op, inst.Format, inst.Imm = op, FormatBranch, immB(word)
	}
}

func (d *Decoder) decodeLoad(word uint32, inst *Instruction) {
	ops := [8]Op{OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU, OpUnknown}
	if op := ops[inst.Funct3]; op != OpUnknown {
		inst.Op, inst.Format, inst.Imm = op, FormatLoad, immI(word)
	}
}

func (d *Decoder) decodeStore(word uint32, inst *Instruction) {
	ops := [8]Op{OpSB, OpSH, OpSW, OpSD}
	if op := ops[inst.Funct3]; op != OpUnknown {
		inst.Op, inst.Format, inst.Imm = op, FormatStore, immS(word)
	}
}

// decodeOpImm decodes OP-IMM. RV64 shifts use a 6-bit shamt, so only
// bits [31:26] take part in selecting SRLI/SRAI.
func (d *Decoder) decodeOpImm(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Imm = immI(word)
	funct6 := word >> 26
	shamt := int64((word >> 20) & 0x3f)

	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpADDI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	case 0b001:
		if funct6 == 0 {
			inst.Op, inst.Imm = OpSLLI, shamt
		}
	case 0b101:
		switch funct6 {
		case 0b000000:
			inst.Op, inst.Imm = OpSRLI, shamt
		case 0b010000:
			inst.Op, inst.Imm = OpSRAI, shamt
		}
	}

	if inst.Op == OpUnknown {
		inst.Format = FormatUnknown
	}
}

func (d *Decoder) decodeOpImm32(word uint32, inst *Instruction) {
	inst.Format = FormatI
	inst.Is32Bit = true
	inst.Imm = immI(word)
	funct7 := word >> 25
	shamt := int64((word >> 20) & 0x1f)

	switch {
	case inst.Funct3 == 0b000:
		inst.Op = OpADDIW
	case inst.Funct3 == 0b001 && funct7 == 0:
		inst.Op, inst.Imm = OpSLLIW, shamt
	case inst.Funct3 == 0b101 && funct7 == 0:
		inst.Op, inst.Imm = OpSRLIW, shamt
	case inst.Funct3 == 0b101 && funct7 == 0b0100000:
		inst.Op, inst.Imm = OpSRAIW, shamt
	default:
		inst.Format = FormatUnknown
	}
}

func (d *Decoder) decodeOp(word uint32, inst *Instruction) {
	funct7 := word >> 25
	var ops [8]Op

	switch funct7 {
	case 0b0000000:
		ops = [8]Op{OpADD, OpSLL, OpSLT, OpSLTU, OpXOR, OpSRL, OpOR, OpAND}
	case 0b0100000:
		ops = [8]Op{OpSUB, OpUnknown, OpUnknown, OpUnknown, OpUnknown, OpSRA}
	case 0b0000001:
		ops = [8]Op{OpMUL, OpMULH, OpMULHSU, OpMULHU, OpDIV, OpDIVU, OpREM, OpREMU}
	}

	if op := ops[inst.Funct3]; op != OpUnknown {
		inst.Op, inst.Format = op, FormatR
	}
}

func (d *Decoder) decodeOp32(word uint32, inst *Instruction) {
	funct7 := word >> 25
	var ops [8]Op

	switch funct7 {
	case 0b0000000:
		ops = [8]Op{OpADDW, OpSLLW, OpUnknown, OpUnknown, OpUnknown, OpSRLW}
	case 0b0100000:
		ops = [8]Op{OpSUBW, OpUnknown, OpUnknown, OpUnknown, OpUnknown, OpSRAW}
	case 0b0000001:
		ops = [8]Op{OpMULW, OpUnknown, OpUnknown, OpUnknown, OpDIVW, OpDIVUW, OpREMW, OpREMUW}
	}

	if op := ops[inst.Funct3]; op != OpUnknown {
		inst.Op, inst.Format, inst.Is32Bit = op, FormatR, true
	}
}

func (d *Decoder) decodeAtomic(word uint32, inst *Instruction) {
	if inst.Funct3 != 0b010 && inst.Funct3 != 0b011 {
		return
	}

	funct5 := word >> 27
	inst.Aq = (word>>26)&1 == 1
	inst.Rl = (word>>25)&1 == 1
	inst.Is32Bit = inst.Funct3 == 0b010

	switch funct5 {
	case 0b00010:
		if inst.Rs2 == 0 {
			inst.Op = OpLR
		}
	case 0b00011:
		inst.Op = OpSC
	case 0b00001:
		inst.Op = OpAMOSWAP
	case 0b00000:
		inst.Op = OpAMOADD
	case 0b00100:
		inst.Op = OpAMOXOR
	case 0b01100:
		inst.Op = OpAMOAND
	case 0b01000:
		inst.Op = OpAMOOR
	case 0b10000:
		inst.Op = OpAMOMIN
	case 0b10100:
		inst.Op = OpAMOMAX
	case 0b11000:
		inst.Op = OpAMOMINU
	case 0b11100:
		inst.Op = OpAMOMAXU
	}

	if inst.Op != OpUnknown {
		inst.Format = FormatAtomic
	}
}

func (d *Decoder) decodeFence(inst *Instruction) {
	switch inst.Funct3 {
	case 0b000:
		inst.Op, inst.Format = OpFENCE, FormatFence
	case 0b001:
		inst.Op, inst.Format = OpFENCEI, FormatFence
	}
}

func (d *Decoder) decodeSystem(word uint32, inst *Instruction) {
	inst.CSR = uint16(word >> 20)

	switch inst.Funct3 {
	case 0b000:
		d.decodePrivileged(word, inst)
		return
	case 0b001:
		inst.Op, inst.Format = OpCSRRW, FormatCSR
	case 0b010:
		inst.Op, inst.Format = OpCSRRS, FormatCSR
	case 0b011:
		inst.Op, inst.Format = OpCSRRC, FormatCSR
	case 0b101:
		inst.Op, inst.Format = OpCSRRWI, FormatCSRImm
	case 0b110:
		inst.Op, inst.Format = OpCSRRSI, FormatCSRImm
	case 0b111:
		inst.Op, inst.Format = OpCSRRCI, FormatCSRImm
	default:
		return
	}

	if inst.Format == FormatCSRImm {
		inst.Imm = int64(inst.Rs1)
	}
}

func (d *Decoder) decodePrivileged(word uint32, inst *Instruction) {
	inst.CSR = 0
	switch {
	case word == 0x00000073:
		inst.Op = OpECALL
	case word == 0x00100073:
		inst.Op = OpEBREAK
	case word == 0x30200073:
		inst.Op = OpMRET
	case word == 0x10200073:
		inst.Op = OpSRET
	case word == 0x10500073:
		inst.Op = OpWFI
	case word>>25 == 0b0001001 && inst.Rd == 0:
		inst.Op = OpSFENCEVMA
	default:
		return
	}
	inst.Format = FormatSystem
}

func (d *Decoder) decodeFPLoad(word uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 0b010:
		inst.Op = OpFLW
	case 0b011:
		inst.Op = OpFLD
	default:
		return
	}
	inst.Format, inst.Imm = FormatFPLoad, immI(word)
}

func (d *Decoder) decodeFPStore(word uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 0b010:
		inst.Op = OpFSW
	case 0b011:
		inst.Op = OpFSD
	default:
		return
	}
	inst.Format, inst.Imm = FormatFPStore, immS(word)
}

func immI(word uint32) int64 {
	return int64(int32(word) >> 20)
}

func immS(word uint32) int64 {
	return int64(int32(word&0xfe000000)>>20) | int64((word>>7)&0x1f)
}

func immB(word uint32) int64 {
	imm := int64(int32(word&0x80000000) >> 19) // imm[12]
	imm |= int64((word & 0x80) << 4)           // imm[11]
	imm |= int64((word >> 20) & 0x7e0)         // imm[10:5]
	imm |= int64((word >> 7) & 0x1e)           // imm[4:1]
	return imm
}

func immU(word uint32) int64 {
	return int64(int32(word & 0xfffff000))
}

func immJ(word uint32) int64 {
	imm := int64(int32(word&0x80000000) >> 11) // imm[20]
	imm |= int64(word & 0xff000)               // imm[19:12]
	imm |= int64((word >> 9) & 0x800)          // imm[11]
	imm |= int64((word >> 20) & 0x7fe)         // imm[10:1]
	return imm
}
