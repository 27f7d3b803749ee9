package harness_test

import (
	"bytes"
	"context"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/cosim"
	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/harness"
	"github.com/sarchlab/rvcommit/insts"
	"github.com/sarchlab/rvcommit/trace"
)

var _ = Describe("Co-simulation run", func() {
	var (
		words    []uint32
		out      *bytes.Buffer
		session  *trace.Session
		detector *cosim.Detector
		checker  *cosim.Hook
		tracer   *trace.Hook
	)

	BeforeEach(func() {
		words = []uint32{
			insts.ADDI(a0, 0, 1),
			insts.ADDI(a1, a0, 7),
			insts.CSRRW(0, emu.CSRToHost, a0),
		}

		engine := cosim.NewEmulatorEngine(nil, emu.WithStdout(io.Discard))
		engine.Emulator().LoadProgram(base, program(words...))

		out = &bytes.Buffer{}
		session = trace.NewSession(out, trace.WithLog(io.Discard))
		detector = cosim.NewDetector(engine,
			cosim.WithTrace(session), cosim.WithMaxMismatches(1))
		checker = cosim.NewHook(detector)
		tracer = trace.NewHook(session)
	})

	run := func(opts ...harness.Option) harness.StopReason {
		opts = append(opts, harness.WithStopper(tracer), harness.WithStopper(checker))
		d := harness.NewDriver(newEmulator(words...), opts...)
		d.AcceptHook(tracer)
		d.AcceptHook(checker)

		reason, err := d.Run(context.Background())
		Expect(err).NotTo(HaveOccurred())
		return reason
	}

	It("should trace a run that agrees with the reference model", func() {
		Expect(run()).To(Equal(harness.StopExited))

		Expect(detector.Mismatches()).To(BeZero())
		Expect(out.String()).To(HavePrefix(
			"core   0: 3 0x0000000080000000 (0x00100513) li      a0, 1 x10 0x0000000000000001\n" +
				"core   0: 3 0x0000000080000004 (0x00750593) addi    a1, a0, 7 x11 0x0000000000000008\n"))
	})

	It("should stop at the first divergence", func() {
		corrupt := harness.WithMutator(func(cycle uint64, ev *commit.Event) {
			if cycle == 1 {
				ev.SetScalar(9)
			}
		})

		Expect(run(corrupt)).To(Equal(harness.StopRequested))

		Expect(detector.Halted()).To(BeTrue())
		m, ok := detector.FirstMismatch()
		Expect(ok).To(BeTrue())
		Expect(m.Cycle).To(Equal(uint64(1)))
		Expect(m.Observed.DstValue).To(Equal(uint64(8)))
		Expect(out.String()).To(HaveSuffix(
			"core   0: 3 0x0000000080000004 (0x00750593) addi    a1, a0, 7 x11 0x0000000000000009\n" +
				"spike: 0x0000000080000004 (0x00750593) addi    a1, a0, 7\n" +
				" x11 0x0000000000000008\n"))
		Expect(session.Enabled()).To(BeFalse())
	})
})
