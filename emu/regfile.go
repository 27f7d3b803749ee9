// Package emu provides functional RV64 emulation.
package emu

// Privilege levels.
const (
	PrivUser       uint8 = 0
	PrivSupervisor uint8 = 1
	PrivMachine    uint8 = 3
)

// RegFile represents the RV64 register file.
// It contains 32 integer registers (x0-x31), 32 floating-point registers
// (f0-f31), the program counter (PC) and the current privilege level.
type RegFile struct {
	// X holds integer registers x0-x31. X[0] always reads as 0.
	X [32]uint64

	// F holds the raw bits of floating-point registers f0-f31.
	// Single-precision values are NaN-boxed.
	F [32]uint64

	// PC is the program counter.
	PC uint64

	// Priv is the current privilege level.
	Priv uint8
}

// ReadReg reads an integer register. Register 0 returns 0.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes an integer register. Writes to register 0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 0 || reg >= 32 {
		return
	}
	r.X[reg] = value
}

// ReadFReg reads the raw bits of a floating-point register.
func (r *RegFile) ReadFReg(reg uint8) uint64 {
	return r.F[reg&0x1f]
}

// WriteFReg writes the raw bits of a floating-point register.
func (r *RegFile) WriteFReg(reg uint8, value uint64) {
	r.F[reg&0x1f] = value
}
