package emu

import (
	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/insts"
)

// CSRToHost is the custom machine CSR some test environments use instead of
// a memory-mapped tohost word.
const CSRToHost uint16 = 0x9f0

// mstatus fields.
const (
	MStatusSIE  uint64 = 1 << 1
	MStatusMIE  uint64 = 1 << 3
	MStatusSPIE uint64 = 1 << 5
	MStatusMPIE uint64 = 1 << 7
	MStatusSPP  uint64 = 1 << 8
	MStatusMPP  uint64 = 3 << 11
	MStatusFS   uint64 = 3 << 13

	mstatusXLen     uint64 = 0xa << 32 // UXL = SXL = 64
	mstatusWritable uint64 = 0x7e79aa
	sstatusMask     uint64 = 0x8000000300de762
)

// Interrupt-pending bits.
const (
	MIPSSIP uint64 = 1 << 1
	MIPMSIP uint64 = 1 << 3
	MIPSTIP uint64 = 1 << 5
	MIPMTIP uint64 = 1 << 7
	MIPSEIP uint64 = 1 << 9
	MIPMEIP uint64 = 1 << 11

	supervisorInterrupts = MIPSSIP | MIPSTIP | MIPSEIP
)

// misaValue advertises RV64IMAFDSU.
const misaValue uint64 = 2<<62 | 1<<0 | 1<<3 | 1<<5 | 1<<8 | 1<<12 | 1<<18 | 1<<20

// CSRFile holds the control and status registers of one hart. Writes made
// by CSR instructions are recorded so the retirement can report them.
type CSRFile struct {
	regs   map[uint16]uint64
	fcsr   uint64
	hartID uint64

	// Cycle and Instret back the counter CSRs. The emulator advances them.
	Cycle   uint64
	Instret uint64

	writes []commit.CSRChange
}

// NewCSRFile creates a CSR file in its reset state.
func NewCSRFile(hartID uint64) *CSRFile {
	c := &CSRFile{
		regs:   make(map[uint16]uint64),
		hartID: hartID,
	}
	c.regs[insts.CSRMStatus] = mstatusXLen
	return c
}

// Implemented reports whether addr names a CSR this hart provides.
func (c *CSRFile) Implemented(addr uint16) bool {
	if addr == CSRToHost {
		return true
	}
	if addr >= 0x7b0 && addr <= 0x7bf {
		return false // debug-mode only
	}
	return insts.KnownCSR(addr)
}

// Accessible reports whether the CSR may be read at priv, and written when
// write is set.
func (c *CSRFile) Accessible(addr uint16, priv uint8, write bool) bool {
	if !c.Implemented(addr) {
		return false
	}
	if uint8((addr>>8)&3) > priv {
		return false
	}
	if write && addr>>10 == 3 {
		return false
	}
	return true
}

// Read returns the current value of a CSR. Unimplemented CSRs read as 0.
func (c *CSRFile) Read(addr uint16) uint64 {
	switch addr {
	case insts.CSRFFlags:
		return c.fcsr & 0x1f
	case insts.CSRFRM:
		return (c.fcsr >> 5) & 0x7
	case insts.CSRFCSR:
		return c.fcsr & 0xff
	case insts.CSRSStatus:
		return c.regs[insts.CSRMStatus] & sstatusMask
	case insts.CSRSIE:
		return c.regs[insts.CSRMIE] & supervisorInterrupts
	case insts.CSRSIP:
		return c.regs[insts.CSRMIP] & supervisorInterrupts
	case insts.CSRMISA:
		return misaValue
	case insts.CSRMHartID:
		return c.hartID
	case insts.CSRCycle, insts.CSRMCycle, insts.CSRTime:
		return c.Cycle
	case insts.CSRInstret, insts.CSRMInstret:
		return c.Instret
	}
	return c.regs[addr]
}

// Write performs an architectural CSR write, applying the field masks of
// the target register, and records the change.
func (c *CSRFile) Write(addr uint16, value uint64) {
	switch addr {
	case insts.CSRFFlags:
		c.fcsr = c.fcsr&^0x1f | value&0x1f
		c.record(addr, c.fcsr&0x1f)
		return
	case insts.CSRFRM:
		c.fcsr = c.fcsr&^0xe0 | (value&0x7)<<5
		c.record(addr, (c.fcsr>>5)&0x7)
		return
	case insts.CSRFCSR:
		c.fcsr = value & 0xff
		c.record(addr, c.fcsr)
		return
	case insts.CSRMStatus:
		value = c.legalizeMStatus(value)
	case insts.CSRSStatus:
		ms := c.regs[insts.CSRMStatus]
		value = c.legalizeMStatus(ms&^sstatusMask | value&sstatusMask)
		addr = insts.CSRMStatus
	case insts.CSRSIE:
		value = c.regs[insts.CSRMIE]&^supervisorInterrupts | value&supervisorInterrupts
		addr = insts.CSRMIE
	case insts.CSRSIP:
		value = c.regs[insts.CSRMIP]&^MIPSSIP | value&MIPSSIP
		addr = insts.CSRMIP
	case insts.CSRMIP:
		value = c.regs[insts.CSRMIP]&^supervisorInterrupts | value&supervisorInterrupts
	case insts.CSRMTVec, insts.CSRSTVec:
		value &^= 2
	case insts.CSRMEPC, insts.CSRSEPC:
		value &^= 3
	case insts.CSRMISA:
		return
	case insts.CSRMCycle:
		c.Cycle = value
	case insts.CSRMInstret:
		c.Instret = value
	}

	c.regs[addr] = value
	c.record(addr, value)
}

// Poke sets a CSR without masking or recording. Debuggers and patch
// hooks use it to force state the program cannot write itself.
func (c *CSRFile) Poke(addr uint16, value uint64) {
	switch addr {
	case insts.CSRFFlags:
		c.fcsr = c.fcsr&^0x1f | value&0x1f
	case insts.CSRFRM:
		c.fcsr = c.fcsr&^0xe0 | (value&0x7)<<5
	case insts.CSRFCSR:
		c.fcsr = value & 0xff
	case insts.CSRMCycle, insts.CSRCycle, insts.CSRTime:
		c.Cycle = value
	case insts.CSRMInstret, insts.CSRInstret:
		c.Instret = value
	default:
		c.regs[addr] = value
	}
}

// SetFFlags ORs accrued exception flags into fflags.
func (c *CSRFile) SetFFlags(flags uint64) {
	c.fcsr |= flags & 0x1f
}

// TakeWrites returns the CSR writes recorded since the last call.
func (c *CSRFile) TakeWrites() []commit.CSRChange {
	if len(c.writes) == 0 {
		return nil
	}
	w := c.writes
	c.writes = nil
	return w
}

func (c *CSRFile) record(addr uint16, value uint64) {
	c.writes = append(c.writes, commit.CSRChange{Addr: uint64(addr), Value: value})
}

func (c *CSRFile) legalizeMStatus(value uint64) uint64 {
	value = value&mstatusWritable | mstatusXLen
	if value&MStatusMPP == 2<<11 {
		value &^= MStatusMPP
	}
	return value
}

// setTrapState updates mstatus on trap entry without recording the write.
func (c *CSRFile) setTrapState(pc, cause, tval uint64, priv uint8) {
	c.regs[insts.CSRMEPC] = pc
	c.regs[insts.CSRMCause] = cause
	c.regs[insts.CSRMTVal] = tval

	ms := c.regs[insts.CSRMStatus]
	ms &^= MStatusMPIE | MStatusMPP
	if ms&MStatusMIE != 0 {
		ms |= MStatusMPIE
	}
	ms &^= MStatusMIE
	ms |= uint64(priv) << 11
	c.regs[insts.CSRMStatus] = ms
}

// returnFromTrap applies mret to mstatus, records the write and returns
// the privilege level to resume in.
func (c *CSRFile) returnFromTrap() uint8 {
	ms := c.regs[insts.CSRMStatus]
	priv := uint8((ms & MStatusMPP) >> 11)
	ms &^= MStatusMIE
	if ms&MStatusMPIE != 0 {
		ms |= MStatusMIE
	}
	ms |= MStatusMPIE
	ms &^= MStatusMPP
	c.regs[insts.CSRMStatus] = ms
	c.record(insts.CSRMStatus, ms)
	return priv
}

// pendingInterrupt returns the highest-priority enabled pending machine
// interrupt, if any.
func (c *CSRFile) pendingInterrupt(priv uint8) (uint64, bool) {
	pending := c.regs[insts.CSRMIP] & c.regs[insts.CSRMIE]
	if pending == 0 {
		return 0, false
	}
	if priv == PrivMachine && c.regs[insts.CSRMStatus]&MStatusMIE == 0 {
		return 0, false
	}
	for _, bit := range []uint64{11, 3, 7, 9, 1, 5} {
		if pending&(1<<bit) != 0 {
			return commit.InterruptBit | bit, true
		}
	}
	return 0, false
}

// returnFromSupervisorTrap applies sret to mstatus, records the write and
// returns the privilege level to resume in.
func (c *CSRFile) returnFromSupervisorTrap() uint8 {
	ms := c.regs[insts.CSRMStatus]
	priv := PrivUser
	if ms&MStatusSPP != 0 {
		priv = PrivSupervisor
	}
	ms &^= MStatusSIE
	if ms&MStatusSPIE != 0 {
		ms |= MStatusSIE
	}
	ms |= MStatusSPIE
	ms &^= MStatusSPP
	c.regs[insts.CSRMStatus] = ms
	c.record(insts.CSRMStatus, ms)
	return priv
}
