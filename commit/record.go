package commit

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RecordSize is the size in bytes of one encoded commit record: 22
// 64-bit fields plus four 32-bit payload words.
const RecordSize = 22*8 + PayloadWords*4

// ErrShortRecord is returned when a buffer is smaller than RecordSize.
var ErrShortRecord = errors.New("commit: short record")

// The record layout mirrors the hardware's per-cycle bundle. Fields appear
// in the reverse order of the SystemVerilog package declaration, so pc is
// last. Do not reorder.
const (
	offFFlagsWrite   = 0
	offMemAddr       = 8
	offMemType       = 16
	offCSRTval       = 24
	offCSRCause      = 32
	offCSRException  = 40
	offCSRRWData     = 48
	offPriv          = 56
	offCause         = 64
	offException     = 72
	offSEW           = 80
	offCSRData       = 88
	offCSRDst        = 96
	offCSRWriteValid = 104
	offData          = 112
	offVectorWrite   = offData + PayloadWords*4
	offFloatWrite    = offVectorWrite + 8
	offIntWrite      = offFloatWrite + 8
	offVDst          = offIntWrite + 8
	offFDst          = offVDst + 8
	offDst           = offFDst + 8
	offInst          = offDst + 8
	offPC            = offInst + 8
)

// Decode unpacks a little-endian commit record.
func Decode(b []byte) (Event, error) {
	var e Event
	if len(b) < RecordSize {
		return e, fmt.Errorf("%w: got %d bytes, want %d", ErrShortRecord, len(b), RecordSize)
	}

	u64 := func(off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

	e.FFlagsWrite = u64(offFFlagsWrite) != 0
	e.MemAddr = u64(offMemAddr)
	e.MemOp = MemOp(u64(offMemType))
	e.CSRTval = u64(offCSRTval)
	e.CSRCause = u64(offCSRCause)
	e.CSRException = u64(offCSRException) != 0
	e.CSRRWData = u64(offCSRRWData)
	e.Priv = uint8(u64(offPriv))
	e.Cause = u64(offCause)
	e.Exception = u64(offException) != 0
	e.SEW = SEW(u64(offSEW))
	e.CSRData = u64(offCSRData)
	e.CSRDst = u64(offCSRDst)
	e.CSRWriteValid = u64(offCSRWriteValid) != 0
	for i := 0; i < PayloadWords; i++ {
		e.Data[i] = binary.LittleEndian.Uint32(b[offData+4*i:])
	}
	e.VectorWrite = u64(offVectorWrite) != 0
	e.FloatWrite = u64(offFloatWrite) != 0
	e.IntWrite = u64(offIntWrite) != 0
	e.VDst = uint8(u64(offVDst))
	e.FDst = uint8(u64(offFDst))
	e.Dst = uint8(u64(offDst))
	e.Inst = uint32(u64(offInst))
	e.PC = u64(offPC)

	return e, nil
}

// Encode packs e into a freshly allocated record.
func Encode(e *Event) []byte {
	b := make([]byte, RecordSize)
	EncodeTo(b, e)
	return b
}

// EncodeTo packs e into b, which must hold at least RecordSize bytes.
func EncodeTo(b []byte, e *Event) {
	put := func(off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

	put(offFFlagsWrite, boolWord(e.FFlagsWrite))
	put(offMemAddr, e.MemAddr)
	put(offMemType, uint64(e.MemOp))
	put(offCSRTval, e.CSRTval)
	put(offCSRCause, e.CSRCause)
	put(offCSRException, boolWord(e.CSRException))
	put(offCSRRWData, e.CSRRWData)
	put(offPriv, uint64(e.Priv))
	put(offCause, e.Cause)
	put(offException, boolWord(e.Exception))
	put(offSEW, uint64(e.SEW))
	put(offCSRData, e.CSRData)
	put(offCSRDst, e.CSRDst)
	put(offCSRWriteValid, boolWord(e.CSRWriteValid))
	for i := 0; i < PayloadWords; i++ {
		binary.LittleEndian.PutUint32(b[offData+4*i:], e.Data[i])
	}
	put(offVectorWrite, boolWord(e.VectorWrite))
	put(offFloatWrite, boolWord(e.FloatWrite))
	put(offIntWrite, boolWord(e.IntWrite))
	put(offVDst, uint64(e.VDst))
	put(offFDst, uint64(e.FDst))
	put(offDst, uint64(e.Dst))
	put(offInst, uint64(e.Inst))
	put(offPC, e.PC)
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
