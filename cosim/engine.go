// Package cosim runs a reference model in lockstep with the core under test
// and reports where the two disagree.
package cosim

import (
	"fmt"

	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/loader"
)

// Observed is what the reference model retired for one injected
// instruction.
type Observed struct {
	PC        uint64
	Inst      uint32
	Dst       uint8
	DstValue  uint64
	Src1Value uint64
	Src2Value uint64
}

// RefEngine is the reference model the detector steps. The register,
// memory and CSR accessors exist only for environment patches.
type RefEngine interface {
	Initialize(path string) error
	StepAndInject(inst uint32) Observed
	ReadRegister(idx uint8) uint64
	WriteRegister(idx uint8, value uint64)
	ReadMemory(addr uint64) uint32
	WriteMemory(addr, value uint64, size int)
	ReadCSR(addr uint16) uint64
	WriteCSR(addr uint16, value uint64)
	Halt()
}

// BootRegister is a register value the core holds at reset that the
// reference model must be given before the first comparison.
type BootRegister struct {
	Index uint8
	Value uint64
}

// DefaultBootRegisters matches the core's reset state: a1 holds the
// device tree offset.
var DefaultBootRegisters = []BootRegister{{Index: 11, Value: 0x180}}

// EmulatorEngine is a RefEngine backed by the functional emulator.
type EmulatorEngine struct {
	emu    *emu.Emulator
	opts   []emu.EmulatorOption
	boot   []BootRegister
	halted bool
}

// NewEmulatorEngine creates an engine. The emulator options apply to the
// instance built by Initialize.
func NewEmulatorEngine(boot []BootRegister, opts ...emu.EmulatorOption) *EmulatorEngine {
	return &EmulatorEngine{
		emu:  emu.NewEmulator(opts...),
		opts: opts,
		boot: boot,
	}
}

// Initialize loads the ELF at path and prepares the reset state.
func (e *EmulatorEngine) Initialize(path string) error {
	prog, err := loader.Load(path)
	if err != nil {
		return fmt.Errorf("failed to set up reference model: %w", err)
	}

	e.emu = emu.NewEmulator(e.opts...)
	mem := emu.NewMemory()
	prog.LoadInto(mem)
	e.emu.LoadProgram(prog.EntryPoint, mem)
	e.emu.SetHostAddresses(prog.Symbols.HostAddresses())

	for _, r := range e.boot {
		e.emu.RegFile().WriteReg(r.Index, r.Value)
	}

	e.halted = false
	return nil
}

// Emulator exposes the wrapped emulator.
func (e *EmulatorEngine) Emulator() *emu.Emulator {
	return e.emu
}

// StepAndInject executes inst at the reference model's current PC.
func (e *EmulatorEngine) StepAndInject(inst uint32) Observed {
	if e.halted {
		return Observed{}
	}

	res := e.emu.StepAndInject(inst)
	ret := res.Retirement

	return Observed{
		PC:        ret.PC,
		Inst:      ret.Inst,
		Dst:       ret.Rd,
		DstValue:  ret.Value,
		Src1Value: ret.Src1Value,
		Src2Value: ret.Src2Value,
	}
}

// ReadRegister returns an integer register.
func (e *EmulatorEngine) ReadRegister(idx uint8) uint64 {
	return e.emu.RegFile().ReadReg(idx)
}

// WriteRegister overwrites an integer register.
func (e *EmulatorEngine) WriteRegister(idx uint8, value uint64) {
	e.emu.RegFile().WriteReg(idx, value)
}

// ReadMemory returns the aligned word holding addr.
func (e *EmulatorEngine) ReadMemory(addr uint64) uint32 {
	return e.emu.Memory().ReadWord(addr)
}

// WriteMemory stores the low size bytes of value at addr.
func (e *EmulatorEngine) WriteMemory(addr, value uint64, size int) {
	e.emu.Memory().Write(addr, value, size)
}

// ReadCSR returns a CSR without side effects.
func (e *EmulatorEngine) ReadCSR(addr uint16) uint64 {
	return e.emu.CSR().Read(addr)
}

// WriteCSR overwrites a CSR, bypassing write masks.
func (e *EmulatorEngine) WriteCSR(addr uint16, value uint64) {
	e.emu.CSR().Poke(addr, value)
}

// Halt stops the engine. Later steps observe nothing.
func (e *EmulatorEngine) Halt() {
	e.halted = true
}

// Halted reports whether Halt was called.
func (e *EmulatorEngine) Halted() bool {
	return e.halted
}
