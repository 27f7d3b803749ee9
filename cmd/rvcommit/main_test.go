package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/insts"
)

const (
	a0 = 10
	a1 = 11

	firstLines = "core   0: 3 0x0000000080000000 (0x00100513) li      a0, 1 x10 0x0000000000000001\n" +
		"core   0: 3 0x0000000080000004 (0x00750593) addi    a1, a0, 7 x11 0x0000000000000008\n"
)

var _ = Describe("rvcommit", func() {
	var (
		dir    string
		elf    string
		stdout *bytes.Buffer
		stderr *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		elf = writeELF(dir,
			insts.ADDI(a0, 0, 1),
			insts.ADDI(a1, a0, 7),
			insts.CSRRW(0, 0x9f0, a0),
		)
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	run := func(args ...string) (int, error) {
		return execute(context.Background(), args, stdout, stderr)
	}

	readTrace := func(path string) string {
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	Describe("run", func() {
		It("should write the trace named by flags", func() {
			path := filepath.Join(dir, "trace.txt")

			code, err := run("run", "--trace-on", "--trace", path, elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(readTrace(path)).To(HavePrefix(firstLines))
		})

		It("should accept simulator plusargs", func() {
			path := filepath.Join(dir, "dump.txt")

			code, err := run("run", elf, "+torture_dump_ON", "+torture_dump="+path)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(readTrace(path)).To(HavePrefix(firstLines))
		})

		It("should take the program from +load", func() {
			code, err := run("run", "--trace-on", "--trace", "-", "+load="+elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(stdout.String()).To(HavePrefix(firstLines))
		})

		It("should agree with the reference model", func() {
			code, err := run("run", "--cosim", "-v", elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(stdout.String()).To(ContainSubstring("Mismatches: 0\n"))
			Expect(stdout.String()).To(ContainSubstring("Stopped: program exited\n"))
		})

		It("should watch the debug PC without a trace", func() {
			code, err := run("run", elf, "+debug_addr=80000004")

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(stdout.String()).To(ContainSubstring(
				"Debug PC: 0x0000000080000004 executed on cycle: 1\n"))
			Expect(stdout.String()).NotTo(ContainSubstring("core   0:"))
		})

		It("should return the program's exit code", func() {
			elf = writeELF(dir, insts.ADDI(a0, 0, 5), insts.CSRRW(0, 0x9f0, a0))

			code, err := run("run", elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(2))
		})

		It("should stop at the cycle limit", func() {
			elf = writeELF(dir, insts.EncodeJ(0, 0))

			code, err := run("run", "-v", "--max-cycles", "50", elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(stdout.String()).To(ContainSubstring("Stopped: cycle limit reached\n"))
			Expect(stdout.String()).To(ContainSubstring("Cycles: 50\n"))
		})

		It("should stop at the wall-clock limit", func() {
			elf = writeELF(dir, insts.EncodeJ(0, 0))

			code, err := run("run", "--timeout", "20ms", elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(Equal(2))
			Expect(stderr.String()).To(ContainSubstring("Timeout reached after 20ms"))
		})

		It("should write CPU and heap profiles", func() {
			cpu := filepath.Join(dir, "cpu.prof")
			mem := filepath.Join(dir, "mem.prof")

			_, err := run("run", "--cpuprofile", cpu, "--memprofile", mem, elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(cpu).To(BeAnExistingFile())
			Expect(mem).To(BeAnExistingFile())
		})

		It("should fail without a program", func() {
			code, err := run("run")

			Expect(err).To(MatchError("no program given"))
			Expect(code).To(Equal(1))
		})

		It("should fail on a missing program", func() {
			_, err := run("run", filepath.Join(dir, "missing.elf"))

			Expect(err).To(MatchError(ContainSubstring("failed to load program")))
		})

		It("should reject unknown plusargs", func() {
			_, err := run("run", elf, "+bogus")

			Expect(err).To(MatchError(ContainSubstring("unknown plusarg")))
		})

		It("should reject an invalid configuration", func() {
			_, err := run("run", "--max-miss", "zz", elf)

			Expect(err).To(MatchError(ContainSubstring("invalid configuration")))
		})

		It("should read settings from a config file", func() {
			path := filepath.Join(dir, "cfg.txt")
			cfgPath := filepath.Join(dir, "rvcommit.json")
			Expect(os.WriteFile(cfgPath,
				[]byte(`{"trace_enabled": true, "trace_path": "`+path+`"}`), 0644)).To(Succeed())

			_, err := run("run", "--config", cfgPath, elf)

			Expect(err).NotTo(HaveOccurred())
			Expect(readTrace(path)).To(HavePrefix(firstLines))
		})
	})

	Describe("record and replay", func() {
		It("should replay a recorded run into the same trace", func() {
			events := filepath.Join(dir, "events.bin")
			live := filepath.Join(dir, "live.txt")

			_, err := run("record", "--trace-on", "--trace", live, elf, events)
			Expect(err).NotTo(HaveOccurred())

			code, err := run("replay", "--trace", "-", events)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
			Expect(stdout.String()).To(Equal(readTrace(live)))
			Expect(stdout.String()).To(HavePrefix(firstLines))
		})

		It("should check a replayed stream against the program", func() {
			events := filepath.Join(dir, "events.bin")
			_, err := run("record", elf, events)
			Expect(err).NotTo(HaveOccurred())

			code, err := run("replay", "--trace", filepath.Join(dir, "t.txt"),
				"--cosim", "--elf", elf, events)

			Expect(err).NotTo(HaveOccurred())
			Expect(code).To(BeZero())
		})

		It("should need the program to cosimulate a replay", func() {
			events := filepath.Join(dir, "events.bin")
			_, err := run("record", elf, events)
			Expect(err).NotTo(HaveOccurred())

			_, err = run("replay", "--cosim", "--trace", filepath.Join(dir, "t.txt"), events)

			Expect(err).To(MatchError(ContainSubstring("needs the program ELF")))
		})

		It("should reject a file that is not an event stream", func() {
			_, err := run("replay", "--trace", "-", elf)

			Expect(err).To(MatchError(ContainSubstring("bad stream magic")))
		})
	})
})

var _ = Describe("splitArgs", func() {
	It("should separate plusargs from positional arguments", func() {
		positional, plus := splitArgs([]string{"a.elf", "+torture_dump_ON", "b", "+max_miss=4"})

		Expect(positional).To(Equal([]string{"a.elf", "b"}))
		Expect(plus).To(Equal([]string{"+torture_dump_ON", "+max_miss=4"}))
	})
})
