package harness_test

import (
	"bytes"
	"context"
	"io"

	"github.com/google/go-cmp/cmp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/harness"
	"github.com/sarchlab/rvcommit/insts"
)

var _ = Describe("Recorder and Player", func() {
	var (
		stream *bytes.Buffer
		ctx    context.Context
	)

	record := func(words ...uint32) *collector {
		sw, err := commit.NewStreamWriter(stream, 0)
		Expect(err).NotTo(HaveOccurred())

		live := &collector{}
		rec := harness.NewRecorder(sw)
		d := harness.NewDriver(newEmulator(words...), harness.WithStopper(rec))
		d.AcceptHook(rec)
		d.AcceptHook(live)

		_, err = d.Run(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Entries()).To(Equal(uint64(len(live.entries))))
		return live
	}

	openPlayer := func(opts ...harness.Option) *harness.Player {
		sr, err := commit.NewStreamReader(bytes.NewReader(stream.Bytes()))
		Expect(err).NotTo(HaveOccurred())
		return harness.NewPlayer(sr, opts...)
	}

	BeforeEach(func() {
		stream = &bytes.Buffer{}
		ctx = context.Background()
	})

	It("should replay exactly what the driver published", func() {
		live := record(
			insts.ADDI(a1, 0, 0x400),
			insts.ADDI(a2, 0, 3),
			insts.Atomic(0x00, 2, a0, a1, a2),
			insts.CSRRWI(0, insts.CSRMScratch, 1),
			insts.CSRRW(0, 0x9f0, a2),
		)

		replayed := &collector{}
		p := openPlayer()
		p.AcceptHook(replayed)

		reason, err := p.Run(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(reason).To(Equal(harness.StopEndOfStream))
		Expect(cmp.Diff(live.entries, replayed.entries)).To(BeEmpty())
		Expect(replayed.pos).To(Equal(live.pos))
		Expect(p.Stats()).To(Equal(harness.Stats{Cycles: 5, Commits: 5}))
		Expect(p.Published()).To(Equal(uint64(len(live.entries))))
	})

	It("should stop before the first entry past the cycle limit", func() {
		record(insts.NOP, insts.NOP, insts.NOP, exit)

		replayed := &collector{}
		p := openPlayer(harness.WithMaxCycles(2))
		p.AcceptHook(replayed)

		reason, err := p.Run(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(reason).To(Equal(harness.StopMaxCycles))
		Expect(replayed.commits()).To(HaveLen(2))
	})

	It("should report a truncated stream", func() {
		record(insts.NOP, insts.NOP, exit)
		stream.Truncate(stream.Len() - 3)

		_, err := openPlayer().Run(ctx)

		Expect(err).To(MatchError(ContainSubstring("failed to read entry 3")))
		Expect(err).To(MatchError(io.ErrUnexpectedEOF))
	})

	It("should stop when a stopper asks to", func() {
		record(insts.NOP, insts.NOP, insts.NOP, exit)

		reason, err := openPlayer(harness.WithStopper(&countingStopper{after: 1})).Run(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(reason).To(Equal(harness.StopRequested))
	})
})
