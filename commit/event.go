// Package commit defines the per-cycle retirement facts emitted by the core
// under test and the fixed-layout records used to move them around.
package commit

// MemOp identifies the memory side effect of a retiring instruction.
type MemOp uint8

// Memory operation kinds, numbered as the hardware encodes mem_type.
const (
	MemNone MemOp = iota
	MemLoad
	MemStore
	MemAMO
)

// String returns a short name for the memory operation.
func (m MemOp) String() string {
	switch m {
	case MemNone:
		return "none"
	case MemLoad:
		return "load"
	case MemStore:
		return "store"
	case MemAMO:
		return "amo"
	}
	return "invalid"
}

// SEW selects the vector element width of a vector writeback.
type SEW uint8

// Element widths.
const (
	SEW8 SEW = iota
	SEW16
	SEW32
	SEW64
)

// PayloadWords is the number of 32-bit words carried in Event.Data. A
// vector register is 128 bits wide on this core.
const PayloadWords = 4

// Event is one architectural retirement fact. Field names follow the
// hardware signal bundle; see Record for the wire layout.
type Event struct {
	// PC is the address of the retiring instruction as presented by the
	// RTL. It may be truncated to 40 bits; use SignedPC for comparisons.
	PC   uint64
	Inst uint32

	Dst  uint8 // integer/float destination index
	FDst uint8
	VDst uint8

	IntWrite    bool
	FloatWrite  bool
	VectorWrite bool
	SEW         SEW

	// Data holds the writeback payload. The scalar value lives in the
	// low two words.
	Data [PayloadWords]uint32

	MemOp   MemOp
	MemAddr uint64

	Exception bool
	Cause     uint64

	CSRException bool
	CSRCause     uint64
	CSRTval      uint64

	Priv        uint8
	FFlagsWrite bool

	// Remaining bundle fields. They travel with the record but do not
	// affect trace rendering.
	CSRWriteValid bool
	CSRDst        uint64
	CSRData       uint64
	CSRRWData     uint64
}

// Scalar returns the 64-bit scalar writeback value.
func (e *Event) Scalar() uint64 {
	return uint64(e.Data[1])<<32 | uint64(e.Data[0])
}

// SetScalar stores v into the low 64 bits of the payload.
func (e *Event) SetScalar(v uint64) {
	e.Data[0] = uint32(v)
	e.Data[1] = uint32(v >> 32)
}

// SignedPC returns the PC sign-extended from its 40-bit RTL width.
func (e *Event) SignedPC() uint64 {
	return SignExtend40(e.PC)
}

// SignedMemAddr returns the memory address sign-extended from 40 bits.
func (e *Event) SignedMemAddr() uint64 {
	return SignExtend40(e.MemAddr)
}

// Trapped reports whether either exception source fired. The two sources
// are mutually exclusive in well-formed input.
func (e *Event) Trapped() bool {
	return e.Exception || e.CSRException
}

// TrapCause returns the cause of whichever exception source fired, OR-ing
// both the way legacy callers expect.
func (e *Event) TrapCause() uint64 {
	return e.Cause | e.CSRCause
}

// Funct3 returns bits [14:12] of the instruction word.
func (e *Event) Funct3() uint32 {
	return (e.Inst >> 12) & 0x7
}

// SignExtend40 sign-extends a 40-bit physical address to 64 bits.
func SignExtend40(v uint64) uint64 {
	return uint64(int64(v<<24) >> 24)
}
