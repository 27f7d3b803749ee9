package emu_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/insts"
)

const (
	ra = 1
	gp = 3
	t0 = 5
	a0 = 10
	a1 = 11
	a2 = 12
)

var _ = Describe("Emulator", func() {
	var (
		e         *emu.Emulator
		stdoutBuf *bytes.Buffer
	)

	BeforeEach(func() {
		stdoutBuf = &bytes.Buffer{}
		e = emu.NewEmulator(emu.WithStdout(stdoutBuf))
	})

	Describe("NewEmulator", func() {
		It("should start in machine mode with initialized components", func() {
			Expect(e.RegFile()).NotTo(BeNil())
			Expect(e.Memory()).NotTo(BeNil())
			Expect(e.CSR()).NotTo(BeNil())
			Expect(e.RegFile().Priv).To(Equal(emu.PrivMachine))
		})
	})

	Describe("LoadProgram", func() {
		It("should set the PC and load the bytes", func() {
			e.LoadProgram(0x8000_0000, []byte{0xde, 0xad, 0xbe, 0xef})

			Expect(e.RegFile().PC).To(Equal(uint64(0x8000_0000)))
			Expect(e.Memory().Read8(0x8000_0003)).To(Equal(uint8(0xef)))
		})
	})

	Describe("Step", func() {
		It("should retire an immediate add with its writeback", func() {
			e.LoadProgram(0x1000, program(insts.ADDI(a0, 0, 5), insts.ADDI(a1, a0, -7)))

			r := e.Step()
			Expect(r.Err).NotTo(HaveOccurred())
			Expect(r.Retirement.PC).To(Equal(uint64(0x1000)))
			Expect(r.Retirement.Inst).To(Equal(insts.ADDI(a0, 0, 5)))
			Expect(r.Retirement.IntWrite).To(BeTrue())
			Expect(r.Retirement.Rd).To(Equal(uint8(a0)))
			Expect(r.Retirement.Value).To(Equal(uint64(5)))

			r = e.Step()
			Expect(r.Retirement.Value).To(Equal(^uint64(1)))
			Expect(r.Retirement.Src1Value).To(Equal(uint64(5)))
			Expect(e.RegFile().PC).To(Equal(uint64(0x1008)))
		})

		It("should not report writes to x0", func() {
			e.LoadProgram(0x1000, program(insts.NOP))

			r := e.Step()
			Expect(r.Retirement.IntWrite).To(BeFalse())
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0)))
		})

		It("should follow RISC-V division corner cases", func() {
			div := insts.EncodeR(insts.OpcodeOp, 4, 1, a2, a0, a1)
			rem := insts.EncodeR(insts.OpcodeOp, 6, 1, a2, a0, a1)
			e.LoadProgram(0x1000, program(div, rem))
			e.RegFile().WriteReg(a0, 42)

			Expect(e.Step().Retirement.Value).To(Equal(^uint64(0)))
			Expect(e.Step().Retirement.Value).To(Equal(uint64(42)))
		})

		It("should sign-extend word arithmetic", func() {
			addw := insts.EncodeR(insts.OpcodeOp32, 0, 0, a2, a0, a1)
			e.LoadProgram(0x1000, program(addw))
			e.RegFile().WriteReg(a0, 0x7fffffff)
			e.RegFile().WriteReg(a1, 1)

			Expect(e.Step().Retirement.Value).To(Equal(uint64(0xffffffff80000000)))
		})

		It("should link and jump", func() {
			e.LoadProgram(0x1000, program(insts.EncodeJ(ra, 16)))

			r := e.Step()
			Expect(r.Retirement.Value).To(Equal(uint64(0x1004)))
			Expect(e.RegFile().PC).To(Equal(uint64(0x1010)))
		})

		It("should take a branch backwards", func() {
			e.LoadProgram(0x1000, program(insts.NOP, insts.EncodeB(1, a0, 0, -4)))
			e.RegFile().WriteReg(a0, 1)

			e.Step()
			e.Step()
			Expect(e.RegFile().PC).To(Equal(uint64(0x1000)))
		})
	})

	Describe("memory instructions", func() {
		BeforeEach(func() {
			e.RegFile().WriteReg(a0, 0x2000)
			e.RegFile().WriteReg(a1, 0xffff_ffff_8000_00ff)
		})

		It("should report store address and truncated data", func() {
			e.LoadProgram(0x1000, program(insts.Store(2, a0, a1, 8)))

			r := e.Step()
			Expect(r.Retirement.MemOp).To(Equal(commit.MemStore))
			Expect(r.Retirement.MemAddr).To(Equal(uint64(0x2008)))
			Expect(r.Retirement.StoreData).To(Equal(uint64(0x8000_00ff)))
			Expect(r.Retirement.IntWrite).To(BeFalse())
		})

		It("should sign-extend loaded words", func() {
			e.Memory().Write32(0x2004, 0x8000_0000)
			e.LoadProgram(0x1000, program(insts.Load(2, a2, a0, 4)))

			r := e.Step()
			Expect(r.Retirement.MemOp).To(Equal(commit.MemLoad))
			Expect(r.Retirement.Value).To(Equal(uint64(0xffff_ffff_8000_0000)))
		})

		It("should trap a misaligned load", func() {
			e.CSR().Write(insts.CSRMTVec, 0x3000)
			e.LoadProgram(0x1000, program(insts.Load(3, a2, a0, 4)))

			r := e.Step()
			Expect(r.Retirement.Exception).To(BeTrue())
			Expect(r.Retirement.Cause).To(Equal(commit.CauseMisalignedLoad))
			Expect(r.Retirement.Tval).To(Equal(uint64(0x2004)))
			Expect(e.RegFile().PC).To(Equal(uint64(0x3000)))
			Expect(e.CSR().Read(insts.CSRMEPC)).To(Equal(uint64(0x1000)))
		})

		It("should return the old value of an AMO and the stored value", func() {
			e.Memory().Write32(0x2000, 40)
			e.RegFile().WriteReg(a1, 2)
			e.LoadProgram(0x1000, program(insts.Atomic(0, 2, a2, a0, a1)))

			r := e.Step()
			Expect(r.Retirement.MemOp).To(Equal(commit.MemAMO))
			Expect(r.Retirement.Value).To(Equal(uint64(40)))
			Expect(r.Retirement.StoreData).To(Equal(uint64(42)))
			Expect(e.Memory().Read32(0x2000)).To(Equal(uint32(42)))
		})

		It("should succeed a store-conditional only after a matching reservation", func() {
			lr := insts.Atomic(2, 3, a2, a0, 0)
			sc := insts.Atomic(3, 3, a2, a0, a1)
			e.LoadProgram(0x1000, program(sc, lr, sc))

			r := e.Step()
			Expect(r.Retirement.Value).To(Equal(uint64(1)))
			Expect(r.Retirement.MemOp).To(Equal(commit.MemNone))

			e.Step()
			r = e.Step()
			Expect(r.Retirement.Value).To(Equal(uint64(0)))
			Expect(r.Retirement.MemOp).To(Equal(commit.MemAMO))
			Expect(e.Memory().Read64(0x2000)).To(Equal(uint64(0xffff_ffff_8000_00ff)))
		})

		It("should raise an access fault past the memory limit", func() {
			limited := emu.NewMemory(emu.WithLimit(0x2000))
			e.LoadProgram(0x1000, limited)
			limited.LoadProgram(0x1000, program(insts.Load(3, a2, a0, 0)))

			r := e.Step()
			Expect(r.Retirement.Cause).To(Equal(commit.CauseFaultLoad))
		})
	})

	Describe("traps and CSRs", func() {
		BeforeEach(func() {
			e.CSR().Write(insts.CSRMTVec, 0x4000)
			e.CSR().TakeWrites()
		})

		It("should record CSR writes made by the instruction", func() {
			e.RegFile().WriteReg(a0, 0x55)
			e.LoadProgram(0x1000, program(insts.CSRRW(a1, insts.CSRMScratch, a0)))

			r := e.Step()
			Expect(r.Retirement.CSRWrites).To(Equal([]commit.CSRChange{
				{Addr: uint64(insts.CSRMScratch), Value: 0x55},
			}))
			Expect(r.Retirement.IntWrite).To(BeTrue())
			Expect(r.Retirement.Value).To(Equal(uint64(0)))
		})

		It("should flag fflags writes", func() {
			e.LoadProgram(0x1000, program(insts.CSRRWI(0, insts.CSRFFlags, 3)))

			r := e.Step()
			Expect(r.Retirement.FFlagsWrite).To(BeTrue())
			Expect(e.CSR().Read(insts.CSRFCSR)).To(Equal(uint64(3)))
		})

		It("should treat unknown CSRs as illegal", func() {
			e.LoadProgram(0x1000, program(insts.CSRRS(a0, 0x5ff, 0)))

			r := e.Step()
			Expect(r.Retirement.Cause).To(Equal(commit.CauseIllegalInstruction))
			Expect(r.Retirement.Tval).To(Equal(uint64(insts.CSRRS(a0, 0x5ff, 0))))
		})

		It("should classify ecall by privilege and return with mret", func() {
			e.LoadProgram(0x1000, program(insts.ECALL))
			e.Memory().LoadProgram(0x4000, program(insts.MRET))

			r := e.Step()
			Expect(r.Retirement.Cause).To(Equal(commit.CauseMachineEcall))
			Expect(e.RegFile().PC).To(Equal(uint64(0x4000)))

			e.CSR().Poke(insts.CSRMEPC, 0x1004)
			r = e.Step()
			Expect(r.Retirement.Exception).To(BeFalse())
			Expect(e.RegFile().PC).To(Equal(uint64(0x1004)))
			Expect(r.Retirement.CSRWrites).To(HaveLen(1))
			Expect(r.Retirement.CSRWrites[0].Addr).To(Equal(uint64(insts.CSRMStatus)))
		})

		It("should report user ecalls after dropping privilege", func() {
			e.RegFile().Priv = emu.PrivUser
			e.LoadProgram(0x1000, program(insts.ECALL))

			r := e.Step()
			Expect(r.Retirement.Priv).To(Equal(emu.PrivUser))
			Expect(r.Retirement.Cause).To(Equal(commit.CauseUserEcall))
			Expect(e.RegFile().Priv).To(Equal(emu.PrivMachine))
		})

		It("should take an enabled pending timer interrupt before executing", func() {
			e.CSR().Write(insts.CSRMIE, emu.MIPMTIP)
			e.CSR().Write(insts.CSRMStatus, emu.MStatusMIE)
			e.CSR().Poke(insts.CSRMIP, emu.MIPMTIP)
			e.LoadProgram(0x1000, program(insts.ADDI(a0, 0, 1)))

			r := e.Step()
			Expect(r.Retirement.Cause).To(Equal(commit.CauseMachineTimerInterrupt))
			Expect(e.RegFile().ReadReg(a0)).To(Equal(uint64(0)))
			Expect(e.CSR().Read(insts.CSRMStatus) & emu.MStatusMPIE).NotTo(BeZero())
		})
	})

	Describe("StepAndInject", func() {
		It("should execute the injected word instead of memory", func() {
			e.LoadProgram(0x1000, program(insts.ADDI(a0, 0, 1)))

			r := e.StepAndInject(insts.NOP)
			Expect(r.Retirement.Inst).To(Equal(insts.NOP))
			Expect(e.RegFile().ReadReg(a0)).To(Equal(uint64(0)))
			Expect(e.RegFile().PC).To(Equal(uint64(0x1004)))
		})
	})

	Describe("host interface", func() {
		It("should exit when the tohost word is written with an odd value", func() {
			e.SetHostAddresses(0x3000, 0x3040)
			e.RegFile().WriteReg(a0, 0x3000)
			e.RegFile().WriteReg(gp, 1)
			e.LoadProgram(0x1000, program(insts.Store(2, a0, gp, 0)))

			r := e.Step()
			Expect(r.Exited).To(BeTrue())
			Expect(r.ExitCode).To(Equal(int64(0)))
			Expect(e.Memory().Read64(0x3000)).To(Equal(uint64(0)))
		})

		It("should proxy SYS_write through the magic memory block", func() {
			e.SetHostAddresses(0x3000, 0x3040)
			mem := e.Memory()
			mem.LoadProgram(0x5000, []byte("hi\n"))
			mem.Write64(0x6000, emu.SysWrite)
			mem.Write64(0x6008, 1)
			mem.Write64(0x6010, 0x5000)
			mem.Write64(0x6018, 3)

			e.RegFile().WriteReg(a0, 0x3000)
			e.RegFile().WriteReg(t0, 0x6000)
			e.LoadProgram(0x1000, program(insts.Store(3, a0, t0, 0)))

			r := e.Step()
			Expect(r.Exited).To(BeFalse())
			Expect(stdoutBuf.String()).To(Equal("hi\n"))
			Expect(mem.Read64(0x3040)).To(Equal(uint64(3)))
		})

		It("should exit through the tohost CSR", func() {
			e.RegFile().WriteReg(gp, 7)
			e.LoadProgram(0x1000, program(insts.CSRRW(0, emu.CSRToHost, gp)))

			r := e.Step()
			Expect(r.Exited).To(BeTrue())
			Expect(r.ExitCode).To(Equal(int64(3)))
		})

		It("should run to completion", func() {
			e.SetHostAddresses(0x3000, 0)
			e.LoadProgram(0x1000, program(
				insts.ADDI(a0, 0, 0x300),
				insts.EncodeI(insts.OpcodeOpImm, 1, a0, a0, 4),
				insts.ADDI(gp, 0, 5),
				insts.Store(3, a0, gp, 0),
			))

			Expect(e.Run()).To(Equal(int64(2)))
			Expect(e.InstructionCount()).To(Equal(uint64(4)))
		})
	})

	Describe("WithMaxInstructions", func() {
		It("should stop after the limit", func() {
			e = emu.NewEmulator(emu.WithMaxInstructions(1))
			e.LoadProgram(0x1000, program(insts.NOP, insts.NOP))

			Expect(e.Step().Err).NotTo(HaveOccurred())
			Expect(e.Step().Err).To(HaveOccurred())
		})
	})
})
