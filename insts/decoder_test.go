package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Integer register-immediate", func() {
		// addi a1, a1, 10 -> 0x00a58593
		It("should decode addi a1, a1, 10", func() {
			inst := decoder.Decode(0x00a58593)

			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Format).To(Equal(insts.FormatI))
			Expect(inst.Rd).To(Equal(uint8(11)))
			Expect(inst.Rs1).To(Equal(uint8(11)))
			Expect(inst.Imm).To(Equal(int64(10)))
		})

		// srai a0, a0, 63 -> 0x43f55513
		It("should decode a 6-bit shift amount", func() {
			inst := decoder.Decode(0x43f55513)

			Expect(inst.Op).To(Equal(insts.OpSRAI))
			Expect(inst.Imm).To(Equal(int64(63)))
		})
	})

	Describe("Branches and jumps", func() {
		// bne a0, zero, -8 -> 0xfe051ce3
		It("should sign-extend a negative branch offset", func() {
			inst := decoder.Decode(0xfe051ce3)

			Expect(inst.Op).To(Equal(insts.OpBNE))
			Expect(inst.Format).To(Equal(insts.FormatBranch))
			Expect(inst.Imm).To(Equal(int64(-8)))
		})

		// jal ra, +16 -> 0x010000ef
		It("should decode a jal offset", func() {
			inst := decoder.Decode(0x010000ef)

			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int64(16)))
		})
	})

	Describe("Memory", func() {
		// sd a0, 8(sp) -> 0x00a13423
		It("should decode a store immediate", func() {
			inst := decoder.Decode(0x00a13423)

			Expect(inst.Op).To(Equal(insts.OpSD))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(10)))
			Expect(inst.Imm).To(Equal(int64(8)))
		})

		// amoadd.w a0, a1, (a2) -> 0x00b6252f
		It("should decode a word-sized AMO", func() {
			inst := decoder.Decode(0x00b6252f)

			Expect(inst.Op).To(Equal(insts.OpAMOADD))
			Expect(inst.Format).To(Equal(insts.FormatAtomic))
			Expect(inst.Is32Bit).To(BeTrue())
		})

		// lr.d a0, (a1) -> 0x1005b52f
		It("should decode lr.d", func() {
			inst := decoder.Decode(0x1005b52f)

			Expect(inst.Op).To(Equal(insts.OpLR))
			Expect(inst.Is32Bit).To(BeFalse())
		})
	})

	Describe("System", func() {
		It("should decode csrr a0, mstatus", func() {
			inst := decoder.Decode(0x30002573)

			Expect(inst.Op).To(Equal(insts.OpCSRRS))
			Expect(inst.CSR).To(Equal(insts.CSRMStatus))
		})

		It("should decode ecall and mret", func() {
			Expect(decoder.Decode(0x00000073).Op).To(Equal(insts.OpECALL))
			Expect(decoder.Decode(0x30200073).Op).To(Equal(insts.OpMRET))
		})
	})

	It("should leave garbage words unknown", func() {
		inst := decoder.Decode(0xffffffff)

		Expect(inst.Op).To(Equal(insts.OpUnknown))
		Expect(inst.Format).To(Equal(insts.FormatUnknown))
	})
})
