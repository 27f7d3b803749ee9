package emu

import "github.com/sarchlab/rvcommit/insts"

// LoadStoreUnit implements loads, stores, LR/SC and AMOs.
type LoadStoreUnit struct {
	regFile *RegFile
	memory  *Memory

	reserved    bool
	reservation uint64
}

// NewLoadStoreUnit creates a new LoadStoreUnit.
func NewLoadStoreUnit(regFile *RegFile, memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{
		regFile: regFile,
		memory:  memory,
	}
}

// AccessSize returns the width in bytes of a memory instruction.
func AccessSize(inst *insts.Instruction) int {
	switch inst.Op {
	case insts.OpLB, insts.OpLBU, insts.OpSB:
		return 1
	case insts.OpLH, insts.OpLHU, insts.OpSH:
		return 2
	case insts.OpLW, insts.OpLWU, insts.OpSW, insts.OpFLW, insts.OpFSW:
		return 4
	case insts.OpLR, insts.OpSC, insts.OpAMOSWAP, insts.OpAMOADD, insts.OpAMOXOR,
		insts.OpAMOAND, insts.OpAMOOR, insts.OpAMOMIN, insts.OpAMOMAX,
		insts.OpAMOMINU, insts.OpAMOMAXU:
		if inst.Is32Bit {
			return 4
		}
	}
	return 8
}

// EffectiveAddress returns rs1 + imm for loads and stores, and rs1 for
// atomics.
func (lsu *LoadStoreUnit) EffectiveAddress(inst *insts.Instruction) uint64 {
	base := lsu.regFile.ReadReg(inst.Rs1)
	if inst.Format == insts.FormatAtomic {
		return base
	}
	return base + uint64(inst.Imm)
}

// Load reads memory for an integer or FP load and returns the value as it
// is written back: sign- or zero-extended, or NaN-boxed for FLW.
func (lsu *LoadStoreUnit) Load(inst *insts.Instruction, addr uint64) uint64 {
	v := lsu.memory.Read(addr, AccessSize(inst))

	switch inst.Op {
	case insts.OpLB:
		return uint64(int64(int8(v)))
	case insts.OpLH:
		return uint64(int64(int16(v)))
	case insts.OpLW:
		return sext32(uint32(v))
	case insts.OpFLW:
		return 0xffffffff00000000 | v
	}
	return v
}

// StoreData returns the value a store writes, truncated to its width.
func (lsu *LoadStoreUnit) StoreData(inst *insts.Instruction) uint64 {
	var v uint64
	if inst.Format == insts.FormatFPStore {
		v = lsu.regFile.ReadFReg(inst.Rs2)
	} else {
		v = lsu.regFile.ReadReg(inst.Rs2)
	}

	if size := AccessSize(inst); size < 8 {
		v &= 1<<(8*size) - 1
	}
	return v
}

// Store writes data to memory. Any reservation covering addr is lost.
func (lsu *LoadStoreUnit) Store(inst *insts.Instruction, addr, data uint64) {
	size := AccessSize(inst)
	lsu.memory.Write(addr, data, size)
	if lsu.reserved && lsu.reservation>>3 == addr>>3 {
		lsu.reserved = false
	}
}

// LoadReserved performs LR and returns the sign-extended loaded value.
func (lsu *LoadStoreUnit) LoadReserved(inst *insts.Instruction, addr uint64) uint64 {
	lsu.reserved = true
	lsu.reservation = addr
	return lsu.loadAtomic(inst, addr)
}

// StoreConditional performs SC. It returns 0 on success and 1 on failure,
// which is the value written to rd. The reservation is always cleared.
func (lsu *LoadStoreUnit) StoreConditional(inst *insts.Instruction, addr uint64) (uint64, bool) {
	ok := lsu.reserved && lsu.reservation == addr
	lsu.reserved = false
	if !ok {
		return 1, false
	}

	lsu.memory.Write(addr, lsu.regFile.ReadReg(inst.Rs2), AccessSize(inst))
	return 0, true
}

// AMO performs a read-modify-write and returns the old value (written to
// rd) and the new value stored to memory.
func (lsu *LoadStoreUnit) AMO(inst *insts.Instruction, addr uint64) (old, stored uint64) {
	old = lsu.loadAtomic(inst, addr)
	src := lsu.regFile.ReadReg(inst.Rs2)
	if inst.Is32Bit {
		src = sext32(uint32(src))
	}

	switch inst.Op {
	case insts.OpAMOSWAP:
		stored = src
	case insts.OpAMOADD:
		stored = old + src
	case insts.OpAMOXOR:
		stored = old ^ src
	case insts.OpAMOAND:
		stored = old & src
	case insts.OpAMOOR:
		stored = old | src
	case insts.OpAMOMIN:
		stored = pick(int64(old) < int64(src), old, src)
	case insts.OpAMOMAX:
		stored = pick(int64(old) > int64(src), old, src)
	case insts.OpAMOMINU:
		stored = pick(old < src, old, src)
	case insts.OpAMOMAXU:
		stored = pick(old > src, old, src)
	}

	if inst.Is32Bit {
		stored = sext32(uint32(stored))
	}
	lsu.Store(inst, addr, stored)
	return old, stored
}

// ClearReservation drops any LR reservation, as trap entry and return do.
func (lsu *LoadStoreUnit) ClearReservation() {
	lsu.reserved = false
}

func (lsu *LoadStoreUnit) loadAtomic(inst *insts.Instruction, addr uint64) uint64 {
	if inst.Is32Bit {
		return sext32(lsu.memory.Read32(addr))
	}
	return lsu.memory.Read64(addr)
}

func pick(cond bool, a, b uint64) uint64 {
	if cond {
		return a
	}
	return b
}
