package harness_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/harness"
)

var _ = Describe("Watchdog", func() {
	var (
		log *bytes.Buffer
		w   *harness.Watchdog
	)

	BeforeEach(func() {
		log = &bytes.Buffer{}
		w = harness.NewWatchdog(10, log)
	})

	It("should stay quiet while the PC changes", func() {
		for c := uint64(0); c < 100; c++ {
			Expect(w.Observe(c, base+4*c, true)).To(BeFalse())
		}
		Expect(log.Len()).To(BeZero())
	})

	It("should warn once per window without a new PC", func() {
		w.Observe(0, base, true)

		var warned []uint64
		for c := uint64(1); c <= 30; c++ {
			if w.Observe(c, 0, false) {
				warned = append(warned, c)
			}
		}

		Expect(warned).To(Equal([]uint64{11, 22}))
		Expect(log.String()).To(Equal(
			"Deadlock with last valid commit PC: 0x0000000080000000 and cycle: 0\n" +
				"Deadlock with last valid commit PC: 0x0000000080000000 and cycle: 11\n"))
	})

	It("should report the cycle of the last progressing commit", func() {
		w.Observe(5, base, true)
		w.Observe(7, base+4, true)

		Expect(w.Observe(18, base+4, true)).To(BeTrue())
		Expect(log.String()).To(HaveSuffix("and cycle: 7\n"))
	})

	It("should sign-extend the reported PC", func() {
		w.Observe(0, 0x80_0000_1000, true)
		w.Observe(11, 0x80_0000_1000, true)

		Expect(log.String()).To(ContainSubstring("0xffffff8000001000"))
	})

	It("should default the window", func() {
		w = harness.NewWatchdog(0, log)
		w.Observe(0, base, true)

		Expect(w.Observe(harness.DefaultDeadlockCycles, base, true)).To(BeFalse())
		Expect(w.Observe(harness.DefaultDeadlockCycles+1, base, true)).To(BeTrue())
	})
})
