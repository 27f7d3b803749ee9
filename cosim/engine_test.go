package cosim_test

import (
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/cosim"
	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/insts"
)

var _ = Describe("EmulatorEngine", func() {
	var engine *cosim.EmulatorEngine

	BeforeEach(func() {
		engine = cosim.NewEmulatorEngine(cosim.DefaultBootRegisters,
			emu.WithStdout(io.Discard), emu.WithStderr(io.Discard))
		engine.Emulator().LoadProgram(0x80000000, []byte{0x13, 0, 0, 0})
	})

	It("should execute the injected word at the current PC", func() {
		obs := engine.StepAndInject(insts.ADDI(10, 0, 5))

		Expect(obs).To(Equal(cosim.Observed{
			PC: 0x80000000, Inst: insts.ADDI(10, 0, 5), Dst: 10, DstValue: 5,
		}))
		Expect(engine.Emulator().RegFile().PC).To(Equal(uint64(0x80000004)))
	})

	It("should report source operand values", func() {
		engine.WriteRegister(11, 0x80001000)
		engine.WriteRegister(12, 7)

		obs := engine.StepAndInject(insts.Store(3, 11, 12, 0))

		Expect(obs.Src1Value).To(Equal(uint64(0x80001000)))
		Expect(obs.Src2Value).To(Equal(uint64(7)))
		Expect(engine.ReadMemory(0x80001000)).To(Equal(uint32(7)))
	})

	It("should expose registers, memory and CSRs for patches", func() {
		engine.WriteRegister(5, 42)
		engine.WriteMemory(0x80002000, 0x1122334455667788, 4)
		engine.WriteCSR(insts.CSRMIP, emu.MIPMTIP)

		Expect(engine.ReadRegister(5)).To(Equal(uint64(42)))
		Expect(engine.ReadMemory(0x80002000)).To(Equal(uint32(0x55667788)))
		Expect(engine.ReadMemory(0x80002004)).To(BeZero())
		Expect(engine.ReadCSR(insts.CSRMIP)).To(Equal(emu.MIPMTIP))
	})

	It("should take an interrupt forced through mip", func() {
		engine.WriteCSR(insts.CSRMIE, emu.MIPMTIP)
		engine.WriteCSR(insts.CSRMStatus, emu.MStatusMIE)
		engine.WriteCSR(insts.CSRMTVec, 0x80000100)
		engine.WriteCSR(insts.CSRMIP, emu.MIPMTIP)

		engine.StepAndInject(insts.NOP)

		Expect(engine.Emulator().CSR().Read(insts.CSRMCause)).To(Equal(commit.CauseMachineTimerInterrupt))
		Expect(engine.Emulator().RegFile().PC).To(Equal(uint64(0x80000100)))
	})

	It("should observe nothing once halted", func() {
		engine.Halt()

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.StepAndInject(insts.ADDI(10, 0, 5))).To(Equal(cosim.Observed{}))
		Expect(engine.ReadRegister(10)).To(BeZero())
	})

	It("should fail to initialize from a missing file", func() {
		err := engine.Initialize("/nonexistent/program.elf")

		Expect(err).To(MatchError(ContainSubstring("failed to set up reference model")))
	})
})
