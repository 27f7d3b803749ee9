package emu

// Memory is a sparse, word-organized memory model. Storage is a map of
// aligned 32-bit words; partial writes carry a 4-bit byte mask. Unwritten
// locations read as zero.
type Memory struct {
	words map[uint64]uint32

	// limit is the first address past the backing store. Zero means the
	// whole address space is backed.
	limit uint64
}

// MemoryOption configures a Memory.
type MemoryOption func(*Memory)

// WithLimit bounds the backed address range to [0, limit). Accesses at or
// beyond limit fault.
func WithLimit(limit uint64) MemoryOption {
	return func(m *Memory) {
		m.limit = limit
	}
}

// NewMemory creates an empty memory.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{words: make(map[uint64]uint32)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backed reports whether size bytes starting at addr are inside the
// backing store.
func (m *Memory) Backed(addr, size uint64) bool {
	if m.limit == 0 {
		return true
	}
	return addr < m.limit && addr+size <= m.limit
}

// ReadWord returns the aligned 32-bit word containing addr.
func (m *Memory) ReadWord(addr uint64) uint32 {
	return m.words[addr>>2]
}

// WriteWord merges word into the aligned word containing addr. Bit i of
// mask enables byte i of the word.
func (m *Memory) WriteWord(addr uint64, word uint32, mask uint8) {
	key := addr >> 2
	if mask&0xf == 0xf {
		m.words[key] = word
		return
	}

	old := m.words[key]
	for i := uint(0); i < 4; i++ {
		if mask&(1<<i) != 0 {
			sel := uint32(0xff) << (8 * i)
			old = old&^sel | word&sel
		}
	}
	m.words[key] = old
}

// Read8 reads a byte.
func (m *Memory) Read8(addr uint64) uint8 {
	return uint8(m.ReadWord(addr) >> (8 * (addr & 3)))
}

// Write8 writes a byte.
func (m *Memory) Write8(addr uint64, value uint8) {
	shift := 8 * (addr & 3)
	m.WriteWord(addr, uint32(value)<<shift, 1<<(addr&3))
}

// Read16 reads a little-endian halfword. Unaligned accesses are assembled
// byte by byte.
func (m *Memory) Read16(addr uint64) uint16 {
	if addr&3 == 3 {
		return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
	}
	return uint16(m.ReadWord(addr) >> (8 * (addr & 3)))
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint64, value uint16) {
	if addr&3 == 3 {
		m.Write8(addr, uint8(value))
		m.Write8(addr+1, uint8(value>>8))
		return
	}
	shift := 8 * (addr & 3)
	m.WriteWord(addr, uint32(value)<<shift, 3<<(addr&3))
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint64) uint32 {
	if addr&3 != 0 {
		return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
	}
	return m.ReadWord(addr)
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint64, value uint32) {
	if addr&3 != 0 {
		m.Write16(addr, uint16(value))
		m.Write16(addr+2, uint16(value>>16))
		return
	}
	m.WriteWord(addr, value, 0xf)
}

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint64) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint64, value uint64) {
	m.Write32(addr, uint32(value))
	m.Write32(addr+4, uint32(value>>32))
}

// Read reads size bytes (1, 2, 4 or 8) zero-extended to 64 bits.
func (m *Memory) Read(addr uint64, size int) uint64 {
	switch size {
	case 1:
		return uint64(m.Read8(addr))
	case 2:
		return uint64(m.Read16(addr))
	case 4:
		return uint64(m.Read32(addr))
	}
	return m.Read64(addr)
}

// Write writes the low size bytes (1, 2, 4 or 8) of value.
func (m *Memory) Write(addr uint64, value uint64, size int) {
	switch size {
	case 1:
		m.Write8(addr, uint8(value))
	case 2:
		m.Write16(addr, uint16(value))
	case 4:
		m.Write32(addr, uint32(value))
	default:
		m.Write64(addr, value)
	}
}

// LoadProgram copies program into memory starting at addr.
func (m *Memory) LoadProgram(addr uint64, program []byte) {
	for i, b := range program {
		m.Write8(addr+uint64(i), b)
	}
}

// LoadSegment copies data to addr and zero-fills up to memSize bytes, the
// way a PT_LOAD segment with a .bss tail is materialized.
func (m *Memory) LoadSegment(addr uint64, data []byte, memSize uint64) {
	m.LoadProgram(addr, data)
	for i := uint64(len(data)); i < memSize; i++ {
		m.Write8(addr+i, 0)
	}
}
