package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/insts"
)

// Retirement describes the architectural effect of one step. It carries
// the same facts the core under test reports for each committed
// instruction.
type Retirement struct {
	PC   uint64
	Inst uint32

	// Priv is the privilege level the instruction executed in.
	Priv uint8

	Rd         uint8
	Value      uint64
	IntWrite   bool
	FloatWrite bool

	MemOp   commit.MemOp
	MemAddr uint64
	// StoreData is the value written by a store, or the value an AMO or
	// successful SC left in memory.
	StoreData uint64

	Exception bool
	Cause     uint64
	Tval      uint64

	CSRWrites   []commit.CSRChange
	FFlagsWrite bool

	Src1Value uint64
	Src2Value uint64
}

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	Retirement Retirement

	// Exited is true if the program terminated through the host interface.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes RV64 instructions functionally.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	csr     *CSRFile
	decoder *insts.Decoder
	host    Host

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit

	// I/O
	stdout io.Writer
	stderr io.Writer

	hartID   uint64
	toHost   uint64
	fromHost uint64
	userHost bool

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithHost sets a custom tohost handler.
func WithHost(host Host) EmulatorOption {
	return func(e *Emulator) {
		e.host = host
		e.userHost = true
	}
}

// WithHostAddresses sets the addresses of the memory-mapped tohost and
// fromhost words. A zero tohost disables the memory-mapped channel.
func WithHostAddresses(toHost, fromHost uint64) EmulatorOption {
	return func(e *Emulator) {
		e.toHost = toHost
		e.fromHost = fromHost
	}
}

// WithHartID sets the value of mhartid.
func WithHartID(id uint64) EmulatorOption {
	return func(e *Emulator) {
		e.hartID = id
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates a new RV64 emulator. Execution starts in machine
// mode.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.initState()
	return e
}

func (e *Emulator) initState() {
	e.regFile = &RegFile{Priv: PrivMachine}
	e.csr = NewCSRFile(e.hartID)
	e.instructionCount = 0
	e.wireUnits()
}

func (e *Emulator) wireUnits() {
	e.alu = NewALU(e.regFile)
	e.lsu = NewLoadStoreUnit(e.regFile, e.memory)
	e.branchUnit = NewBranchUnit(e.regFile)
	if !e.userHost {
		e.host = NewHTIFHost(e.memory, e.fromHost, e.stdout, e.stderr)
	}
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// CSR returns the emulator's CSR file.
func (e *Emulator) CSR() *CSRFile {
	return e.csr
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// SetHostAddresses updates the tohost and fromhost addresses, typically
// after the program's symbol table is known.
func (e *Emulator) SetHostAddresses(toHost, fromHost uint64) {
	e.toHost = toHost
	e.fromHost = fromHost
	e.wireUnits()
}

// LoadProgram loads a program into memory and sets the entry point.
// The program can be either a []byte or a *Memory.
func (e *Emulator) LoadProgram(entry uint64, program interface{}) {
	switch p := program.(type) {
	case []byte:
		e.memory.LoadProgram(entry, p)
	case *Memory:
		e.memory = p
		e.wireUnits()
	}
	e.regFile.PC = entry
}

// Reset resets the emulator to its initial state, keeping memory.
func (e *Emulator) Reset() {
	e.initState()
}

// Step fetches and executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.limitReached() {
		return StepResult{Err: fmt.Errorf("max instructions reached")}
	}

	pc := e.regFile.PC
	switch {
	case pc&3 != 0:
		return e.fetchTrap(commit.CauseMisalignedFetch, pc)
	case !e.memory.Backed(pc, 4):
		return e.fetchTrap(commit.CauseFaultFetch, pc)
	}

	return e.step(e.memory.Read32(pc))
}

// StepAndInject executes word as if it had been fetched from the current
// PC. Memory at the PC is not consulted.
func (e *Emulator) StepAndInject(word uint32) StepResult {
	if e.limitReached() {
		return StepResult{Err: fmt.Errorf("max instructions reached")}
	}
	return e.step(word)
}

// Run executes instructions until the program exits or an error occurs.
// Returns the exit code (-1 if error).
func (e *Emulator) Run() int64 {
	for {
		result := e.Step()
		if result.Exited {
			return result.ExitCode
		}
		if result.Err != nil {
			_, _ = fmt.Fprintf(e.stderr, "Emulation error: %v\n", result.Err)
			return -1
		}
	}
}

func (e *Emulator) limitReached() bool {
	return e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions
}

func (e *Emulator) fetchTrap(cause, tval uint64) StepResult {
	ret := Retirement{PC: e.regFile.PC, Priv: e.regFile.Priv}
	e.trap(&ret, cause, tval)
	e.retire(&ret)
	return StepResult{Retirement: ret}
}

func (e *Emulator) step(word uint32) StepResult {
	ret := Retirement{
		PC:   e.regFile.PC,
		Inst: word,
		Priv: e.regFile.Priv,
	}

	if cause, ok := e.csr.pendingInterrupt(e.regFile.Priv); ok {
		e.trap(&ret, cause, 0)
		e.retire(&ret)
		return StepResult{Retirement: ret}
	}

	inst := e.decoder.Decode(word)
	ret.Src1Value = e.regFile.ReadReg(inst.Rs1)
	ret.Src2Value = e.regFile.ReadReg(inst.Rs2)

	result := e.execute(inst, &ret)
	e.retire(&ret)
	result.Retirement = ret
	return result
}

func (e *Emulator) retire(ret *Retirement) {
	ret.CSRWrites = e.csr.TakeWrites()
	e.instructionCount++
	e.csr.Cycle++
	if !ret.Exception {
		e.csr.Instret++
	}
}

// trap enters machine mode. Delegation registers are not consulted.
func (e *Emulator) trap(ret *Retirement, cause, tval uint64) {
	ret.Exception = true
	ret.Cause = cause
	ret.Tval = tval
	ret.IntWrite, ret.FloatWrite = false, false
	ret.MemOp = commit.MemNone

	e.lsu.ClearReservation()
	e.csr.setTrapState(ret.PC, cause, tval, e.regFile.Priv)
	e.regFile.Priv = PrivMachine

	vec := e.csr.Read(insts.CSRMTVec)
	target := vec &^ 3
	if vec&1 == 1 && cause&commit.InterruptBit != 0 {
		target += 4 * (cause &^ commit.InterruptBit)
	}
	e.regFile.PC = target
}

func (e *Emulator) writeInt(ret *Retirement, rd uint8, value uint64) {
	e.regFile.WriteReg(rd, value)
	ret.Rd = rd
	ret.Value = value
	ret.IntWrite = rd != 0
}

func (e *Emulator) writeFloat(ret *Retirement, rd uint8, value uint64) {
	e.regFile.WriteFReg(rd, value)
	ret.Rd = rd
	ret.Value = value
	ret.FloatWrite = true
}

// execute dispatches and executes a decoded instruction.
func (e *Emulator) execute(inst *insts.Instruction, ret *Retirement) StepResult {
	pc := ret.PC
	next := pc + 4

	switch inst.Format {
	case insts.FormatUnknown:
		e.trap(ret, commit.CauseIllegalInstruction, uint64(inst.Raw))
		return StepResult{}
	case insts.FormatU:
		v := uint64(inst.Imm)
		if inst.Op == insts.OpAUIPC {
			v += pc
		}
		e.writeInt(ret, inst.Rd, v)
	case insts.FormatJ, insts.FormatJALR:
		target := e.branchUnit.Target(inst, pc)
		if target&3 != 0 {
			e.trap(ret, commit.CauseMisalignedFetch, target)
			return StepResult{}
		}
		e.writeInt(ret, inst.Rd, next)
		next = target
	case insts.FormatBranch:
		if e.branchUnit.Taken(inst) {
			target := e.branchUnit.Target(inst, pc)
			if target&3 != 0 {
				e.trap(ret, commit.CauseMisalignedFetch, target)
				return StepResult{}
			}
			next = target
		}
	case insts.FormatI, insts.FormatR:
		e.writeInt(ret, inst.Rd, e.alu.Execute(inst))
	case insts.FormatFence:
	case insts.FormatLoad, insts.FormatFPLoad:
		if !e.executeLoad(inst, ret) {
			return StepResult{}
		}
	case insts.FormatStore, insts.FormatFPStore:
		res, ok := e.executeStore(inst, ret)
		if !ok {
			return StepResult{}
		}
		e.regFile.PC = next
		return res
	case insts.FormatAtomic:
		if !e.executeAtomic(inst, ret) {
			return StepResult{}
		}
	case insts.FormatCSR, insts.FormatCSRImm:
		res, ok := e.executeCSR(inst, ret)
		if !ok {
			return StepResult{}
		}
		e.regFile.PC = next
		return res
	case insts.FormatSystem:
		return e.executeSystem(inst, ret)
	default:
		return StepResult{
			Err: fmt.Errorf("unimplemented format %d at PC=0x%X", inst.Format, pc),
		}
	}

	e.regFile.PC = next
	return StepResult{}
}

// checkAccess raises the misaligned or access-fault trap for an access and
// reports whether the access may proceed.
func (e *Emulator) checkAccess(ret *Retirement, addr uint64, size int, load bool) bool {
	misaligned, fault := commit.CauseMisalignedStore, commit.CauseFaultStore
	if load {
		misaligned, fault = commit.CauseMisalignedLoad, commit.CauseFaultLoad
	}

	switch {
	case addr%uint64(size) != 0:
		e.trap(ret, misaligned, addr)
		return false
	case !e.memory.Backed(addr, uint64(size)):
		e.trap(ret, fault, addr)
		return false
	}
	return true
}

func (e *Emulator) executeLoad(inst *insts.Instruction, ret *Retirement) bool {
	addr := e.lsu.EffectiveAddress(inst)
	if !e.checkAccess(ret, addr, AccessSize(inst), true) {
		return false
	}

	v := e.lsu.Load(inst, addr)
	if inst.Format == insts.FormatFPLoad {
		e.writeFloat(ret, inst.Rd, v)
	} else {
		e.writeInt(ret, inst.Rd, v)
	}
	ret.MemOp = commit.MemLoad
	ret.MemAddr = addr
	return true
}

func (e *Emulator) executeStore(inst *insts.Instruction, ret *Retirement) (StepResult, bool) {
	addr := e.lsu.EffectiveAddress(inst)
	size := AccessSize(inst)
	if !e.checkAccess(ret, addr, size, false) {
		return StepResult{}, false
	}

	data := e.lsu.StoreData(inst)
	e.lsu.Store(inst, addr, data)
	ret.MemOp = commit.MemStore
	ret.MemAddr = addr
	ret.StoreData = data

	return e.pollToHost(addr, uint64(size)), true
}

func (e *Emulator) executeAtomic(inst *insts.Instruction, ret *Retirement) bool {
	addr := e.lsu.EffectiveAddress(inst)
	if !e.checkAccess(ret, addr, AccessSize(inst), inst.Op == insts.OpLR) {
		return false
	}

	ret.MemAddr = addr
	switch inst.Op {
	case insts.OpLR:
		e.writeInt(ret, inst.Rd, e.lsu.LoadReserved(inst, addr))
		ret.MemOp = commit.MemLoad
	case insts.OpSC:
		rd, ok := e.lsu.StoreConditional(inst, addr)
		e.writeInt(ret, inst.Rd, rd)
		if ok {
			ret.MemOp = commit.MemAMO
			ret.StoreData = e.lsu.StoreData(inst)
		}
	default:
		old, stored := e.lsu.AMO(inst, addr)
		e.writeInt(ret, inst.Rd, old)
		ret.MemOp = commit.MemAMO
		ret.StoreData = stored
	}
	return true
}

func (e *Emulator) executeCSR(inst *insts.Instruction, ret *Retirement) (StepResult, bool) {
	src := e.regFile.ReadReg(inst.Rs1)
	if inst.Format == insts.FormatCSRImm {
		src = uint64(inst.Imm)
	}

	write := inst.Op == insts.OpCSRRW || inst.Op == insts.OpCSRRWI || inst.Rs1 != 0
	if !e.csr.Accessible(inst.CSR, e.regFile.Priv, write) {
		e.trap(ret, commit.CauseIllegalInstruction, uint64(inst.Raw))
		return StepResult{}, false
	}

	old := e.csr.Read(inst.CSR)
	var result StepResult
	if write {
		v := src
		switch inst.Op {
		case insts.OpCSRRS, insts.OpCSRRSI:
			v = old | src
		case insts.OpCSRRC, insts.OpCSRRCI:
			v = old &^ src
		}
		e.csr.Write(inst.CSR, v)

		switch inst.CSR {
		case insts.CSRFFlags:
			ret.FFlagsWrite = true
		case CSRToHost:
			result = e.toHostResult(v)
		}
	}

	e.writeInt(ret, inst.Rd, old)
	return result, true
}

func (e *Emulator) executeSystem(inst *insts.Instruction, ret *Retirement) StepResult {
	priv := e.regFile.Priv

	switch inst.Op {
	case insts.OpECALL:
		e.trap(ret, ecallCause(priv), 0)
		return StepResult{}
	case insts.OpEBREAK:
		e.trap(ret, commit.CauseBreakpoint, ret.PC)
		return StepResult{}
	case insts.OpMRET:
		if priv < PrivMachine {
			e.trap(ret, commit.CauseIllegalInstruction, uint64(inst.Raw))
			return StepResult{}
		}
		e.lsu.ClearReservation()
		e.regFile.Priv = e.csr.returnFromTrap()
		e.regFile.PC = e.csr.Read(insts.CSRMEPC)
		return StepResult{}
	case insts.OpSRET:
		if priv < PrivSupervisor {
			e.trap(ret, commit.CauseIllegalInstruction, uint64(inst.Raw))
			return StepResult{}
		}
		e.lsu.ClearReservation()
		e.regFile.Priv = e.csr.returnFromSupervisorTrap()
		e.regFile.PC = e.csr.Read(insts.CSRSEPC)
		return StepResult{}
	case insts.OpSFENCEVMA:
		if priv < PrivSupervisor {
			e.trap(ret, commit.CauseIllegalInstruction, uint64(inst.Raw))
			return StepResult{}
		}
	}

	// WFI and SFENCE.VMA complete immediately.
	e.regFile.PC = ret.PC + 4
	return StepResult{}
}

func ecallCause(priv uint8) uint64 {
	switch priv {
	case PrivUser:
		return commit.CauseUserEcall
	case PrivSupervisor:
		return commit.CauseSupervisorEcall
	}
	return commit.CauseMachineEcall
}

// pollToHost hands a store that touched the tohost word to the host. The
// word is cleared once consumed.
func (e *Emulator) pollToHost(addr, size uint64) StepResult {
	if e.toHost == 0 || addr+size <= e.toHost || addr >= e.toHost+8 {
		return StepResult{}
	}

	v := e.memory.Read64(e.toHost)
	if v == 0 {
		return StepResult{}
	}
	e.memory.Write64(e.toHost, 0)
	return e.toHostResult(v)
}

func (e *Emulator) toHostResult(v uint64) StepResult {
	hr := e.host.ToHost(v)
	return StepResult{Exited: hr.Exited, ExitCode: hr.ExitCode}
}
