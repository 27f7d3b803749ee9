package insts

import "fmt"

// Control and status register addresses used across the repository.
const (
	CSRFFlags     uint16 = 0x001
	CSRFRM        uint16 = 0x002
	CSRFCSR       uint16 = 0x003
	CSRSStatus    uint16 = 0x100
	CSRSIE        uint16 = 0x104
	CSRSTVec      uint16 = 0x105
	CSRSScratch   uint16 = 0x140
	CSRSEPC       uint16 = 0x141
	CSRSCause     uint16 = 0x142
	CSRSTVal      uint16 = 0x143
	CSRSIP        uint16 = 0x144
	CSRSATP       uint16 = 0x180
	CSRMStatus    uint16 = 0x300
	CSRMISA       uint16 = 0x301
	CSRMEDeleg    uint16 = 0x302
	CSRMIDeleg    uint16 = 0x303
	CSRMIE        uint16 = 0x304
	CSRMTVec      uint16 = 0x305
	CSRMCounterEn uint16 = 0x306
	CSRMScratch   uint16 = 0x340
	CSRMEPC       uint16 = 0x341
	CSRMCause     uint16 = 0x342
	CSRMTVal      uint16 = 0x343
	CSRMIP        uint16 = 0x344
	CSRPMPCfg0    uint16 = 0x3a0
	CSRPMPAddr0   uint16 = 0x3b0
	CSRMCycle     uint16 = 0xb00
	CSRMInstret   uint16 = 0xb02
	CSRCycle      uint16 = 0xc00
	CSRTime       uint16 = 0xc01
	CSRInstret    uint16 = 0xc02
	CSRMVendorID  uint16 = 0xf11
	CSRMArchID    uint16 = 0xf12
	CSRMImpID     uint16 = 0xf13
	CSRMHartID    uint16 = 0xf14
)

var csrNames = map[uint16]string{
	0x001: "fflags", 0x002: "frm", 0x003: "fcsr",
	0x100: "sstatus", 0x104: "sie", 0x105: "stvec", 0x106: "scounteren",
	0x140: "sscratch", 0x141: "sepc", 0x142: "scause", 0x143: "stval",
	0x144: "sip", 0x180: "satp",
	0x300: "mstatus", 0x301: "misa", 0x302: "medeleg", 0x303: "mideleg",
	0x304: "mie", 0x305: "mtvec", 0x306: "mcounteren", 0x320: "mcountinhibit",
	0x340: "mscratch", 0x341: "mepc", 0x342: "mcause", 0x343: "mtval", 0x344: "mip",
	0x7a0: "tselect", 0x7a1: "tdata1", 0x7a2: "tdata2", 0x7a3: "tdata3",
	0x7b0: "dcsr", 0x7b1: "dpc", 0x7b2: "dscratch0", 0x7b3: "dscratch1",
	0xb00: "mcycle", 0xb02: "minstret",
	0xc00: "cycle", 0xc01: "time", 0xc02: "instret",
	0xf11: "mvendorid", 0xf12: "marchid", 0xf13: "mimpid", 0xf14: "mhartid",
}

func init() {
	for i := uint16(0); i < 16; i++ {
		if i%2 == 0 {
			csrNames[CSRPMPCfg0+i] = fmt.Sprintf("pmpcfg%d", i)
		}
		csrNames[CSRPMPAddr0+i] = fmt.Sprintf("pmpaddr%d", i)
	}
	for i := uint16(3); i < 32; i++ {
		csrNames[0xb00+i] = fmt.Sprintf("mhpmcounter%d", i)
		csrNames[0xc00+i] = fmt.Sprintf("hpmcounter%d", i)
		csrNames[0x320+i] = fmt.Sprintf("mhpmevent%d", i)
	}
}

// CSRName returns the reference simulator's name for a CSR address. Unknown
// addresses get a numeric label.
func CSRName(addr uint64) string {
	if addr <= 0xfff {
		if n, ok := csrNames[uint16(addr)]; ok {
			return n
		}
	}
	return fmt.Sprintf("unknown_%03x", addr)
}

// KnownCSR reports whether addr has a name in the reference simulator's
// vocabulary.
func KnownCSR(addr uint16) bool {
	_, ok := csrNames[addr]
	return ok
}
