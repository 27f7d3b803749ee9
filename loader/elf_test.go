package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvcommit/emu"
	"github.com/sarchlab/rvcommit/loader"
)

const (
	machineRISCV  = 243
	machineX86_64 = 62
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	write := func(name string, b *elfBuilder) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, b.bytes(), 0644)).To(Succeed())
		return path
	}

	Describe("Load", func() {
		Context("with a valid RISC-V ELF binary", func() {
			code := []byte{
				0x13, 0x05, 0xa0, 0x02, // li a0, 42
				0x73, 0x00, 0x00, 0x00, // ecall
			}

			It("should extract the entry point and segment", func() {
				path := write("test.elf", newELF(0x8000_0004).
					segment(0x8000_0000, code, uint64(len(code)), 0x5))

				prog, err := loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint64(0x8000_0004)))
				Expect(prog.Segments).To(HaveLen(1))
				Expect(prog.Segments[0].VirtAddr).To(Equal(uint64(0x8000_0000)))
				Expect(prog.Segments[0].Data).To(Equal(code))
				Expect(prog.Segments[0].Flags & loader.SegmentFlagExecute).NotTo(BeZero())
			})

			It("should give a stripped binary an empty symbol table", func() {
				path := write("stripped.elf", newELF(0x8000_0000).
					segment(0x8000_0000, code, uint64(len(code)), 0x5))

				prog, err := loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Symbols).NotTo(BeNil())
				Expect(prog.Symbols.Len()).To(Equal(0))
			})
		})

		Context("with multiple segments", func() {
			It("should load every PT_LOAD segment with its permissions", func() {
				code := []byte{0x13, 0x00, 0x00, 0x00}
				data := []byte{0x01, 0x02, 0x03, 0x04}
				path := write("multi.elf", newELF(0x8000_0000).
					segment(0x8000_0000, code, 4, 0x5).
					segment(0x8000_1000, data, 4, 0x6))

				prog, err := loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(2))
				Expect(prog.Segments[1].Data).To(Equal(data))
				Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
			})
		})

		Context("with BSS segments", func() {
			It("should keep MemSize larger than the file data", func() {
				path := write("bss.elf", newELF(0x8000_0000).
					segment(0x8000_2000, []byte{1, 2, 3, 4}, 1024, 0x6))

				prog, err := loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments[0].MemSize).To(Equal(uint64(1024)))
			})

			It("should handle segments with zero file size", func() {
				path := write("zero.elf", newELF(0x8000_0000).
					segment(0x8000_3000, nil, 4096, 0x6))

				prog, err := loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments[0].Data).To(BeEmpty())
				Expect(prog.Segments[0].MemSize).To(Equal(uint64(4096)))
			})
		})

		Context("with a symbol table", func() {
			var prog *loader.Program

			BeforeEach(func() {
				path := write("syms.elf", newELF(0x8000_0000).
					segment(0x8000_0000, []byte{0x13, 0, 0, 0}, 4, 0x5).
					symbol("_start", 0x8000_0000).
					symbol("tohost", 0x8000_1000).
					symbol("fromhost", 0x8000_1040).
					symbol("alias", 0x8000_0000))

				var err error
				prog, err = loader.Load(path)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should resolve names to addresses", func() {
				addr, ok := prog.Symbols.AddrOf("tohost")
				Expect(ok).To(BeTrue())
				Expect(addr).To(Equal(uint64(0x8000_1000)))

				_, ok = prog.Symbols.AddrOf("missing")
				Expect(ok).To(BeFalse())
			})

			It("should resolve exact addresses to the first symbol defined there", func() {
				name, ok := prog.Symbols.SymbolAt(0x8000_0000)
				Expect(ok).To(BeTrue())
				Expect(name).To(Equal("_start"))

				_, ok = prog.Symbols.SymbolAt(0x8000_0004)
				Expect(ok).To(BeFalse())
			})

			It("should expose the host interface addresses", func() {
				toHost, fromHost := prog.Symbols.HostAddresses()
				Expect(toHost).To(Equal(uint64(0x8000_1000)))
				Expect(fromHost).To(Equal(uint64(0x8000_1040)))
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				path := filepath.Join(tempDir, "not-elf.bin")
				Expect(os.WriteFile(path, []byte("not an elf file"), 0644)).To(Succeed())

				_, err := loader.Load(path)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("ELF"))
			})

			It("should reject other machines", func() {
				b := newELF(0)
				b.machine = machineX86_64
				path := write("x86.elf", b)

				_, err := loader.Load(path)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})

			It("should reject 32-bit ELF files", func() {
				path := filepath.Join(tempDir, "elf32.elf")
				hdr := make([]byte, 52)
				copy(hdr, []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})
				binary.LittleEndian.PutUint16(hdr[16:18], 2)
				binary.LittleEndian.PutUint16(hdr[18:20], machineRISCV)
				binary.LittleEndian.PutUint32(hdr[20:24], 1)
				Expect(os.WriteFile(path, hdr, 0644)).To(Succeed())

				_, err := loader.Load(path)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a 64-bit"))
			})
		})
	})

	Describe("LoadInto", func() {
		It("should materialize segments in emulator memory", func() {
			path := write("load.elf", newELF(0x8000_0000).
				segment(0x8000_0000, []byte{0xef, 0xbe, 0xad, 0xde}, 8, 0x7))

			prog, err := loader.Load(path)
			Expect(err).NotTo(HaveOccurred())

			mem := emu.NewMemory()
			mem.Write32(0x8000_0004, 0xffffffff)
			prog.LoadInto(mem)

			Expect(mem.Read32(0x8000_0000)).To(Equal(uint32(0xdeadbeef)))
			Expect(mem.Read32(0x8000_0004)).To(Equal(uint32(0)))
		})
	})
})

type testSegment struct {
	addr    uint64
	data    []byte
	memSize uint64
	flags   uint32
}

type testSymbol struct {
	name string
	addr uint64
}

// elfBuilder assembles small ELF64 little-endian executables: program
// headers, segment data and, when symbols are present, .symtab, .strtab
// and .shstrtab sections.
type elfBuilder struct {
	machine  uint16
	entry    uint64
	segments []testSegment
	symbols  []testSymbol
}

func newELF(entry uint64) *elfBuilder {
	return &elfBuilder{machine: machineRISCV, entry: entry}
}

func (b *elfBuilder) segment(addr uint64, data []byte, memSize uint64, flags uint32) *elfBuilder {
	b.segments = append(b.segments, testSegment{addr, data, memSize, flags})
	return b
}

func (b *elfBuilder) symbol(name string, addr uint64) *elfBuilder {
	b.symbols = append(b.symbols, testSymbol{name, addr})
	return b
}

func (b *elfBuilder) bytes() []byte {
	le := binary.LittleEndian
	phoff := uint64(64)
	dataOff := phoff + 56*uint64(len(b.segments))

	out := make([]byte, dataOff)
	copy(out, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	le.PutUint16(out[16:], 2)
	le.PutUint16(out[18:], b.machine)
	le.PutUint32(out[20:], 1)
	le.PutUint64(out[24:], b.entry)
	le.PutUint64(out[32:], phoff)
	le.PutUint16(out[52:], 64)
	le.PutUint16(out[54:], 56)
	le.PutUint16(out[56:], uint16(len(b.segments)))
	le.PutUint16(out[58:], 64)

	for i, s := range b.segments {
		ph := out[phoff+56*uint64(i):]
		le.PutUint32(ph[0:], 1) // PT_LOAD
		le.PutUint32(ph[4:], s.flags)
		le.PutUint64(ph[8:], uint64(len(out)))
		le.PutUint64(ph[16:], s.addr)
		le.PutUint64(ph[24:], s.addr)
		le.PutUint64(ph[32:], uint64(len(s.data)))
		le.PutUint64(ph[40:], s.memSize)
		le.PutUint64(ph[48:], 0x1000)
		out = append(out, s.data...)
	}

	if len(b.symbols) == 0 {
		return out
	}

	strtab := []byte{0}
	symtab := make([]byte, 24) // null symbol
	for _, s := range b.symbols {
		sym := make([]byte, 24)
		le.PutUint32(sym[0:], uint32(len(strtab)))
		sym[4] = 0x10 // STB_GLOBAL, STT_NOTYPE
		le.PutUint16(sym[6:], 0xfff1)
		le.PutUint64(sym[8:], s.addr)
		symtab = append(symtab, sym...)
		strtab = append(append(strtab, s.name...), 0)
	}
	shstrtab := []byte("\x00.symtab\x00.strtab\x00.shstrtab\x00")

	strOff := uint64(len(out))
	out = append(out, strtab...)
	symOff := uint64(len(out))
	out = append(out, symtab...)
	shstrOff := uint64(len(out))
	out = append(out, shstrtab...)

	shoff := uint64(len(out))
	le.PutUint64(out[40:], shoff)
	le.PutUint16(out[60:], 4)
	le.PutUint16(out[62:], 3)

	section := func(name, typ uint32, off, size, link, info, entsize uint64) {
		sh := make([]byte, 64)
		le.PutUint32(sh[0:], name)
		le.PutUint32(sh[4:], typ)
		le.PutUint64(sh[24:], off)
		le.PutUint64(sh[32:], size)
		le.PutUint32(sh[40:], uint32(link))
		le.PutUint32(sh[44:], uint32(info))
		le.PutUint64(sh[48:], 1)
		le.PutUint64(sh[56:], entsize)
		out = append(out, sh...)
	}
	section(0, 0, 0, 0, 0, 0, 0)
	section(1, 2, symOff, uint64(len(symtab)), 2, 1, 24) // .symtab
	section(9, 3, strOff, uint64(len(strtab)), 0, 0, 0)  // .strtab
	section(17, 3, shstrOff, uint64(len(shstrtab)), 0, 0, 0)

	return out
}
