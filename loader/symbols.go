package loader

// Well-known symbols of the host-target interface.
const (
	SymbolToHost   = "tohost"
	SymbolFromHost = "fromhost"
)

// Symbol is one named address from an ELF symbol table.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// SymbolTable maps between symbol names and addresses. Lookups by address
// are exact; the first symbol defined at an address names it.
type SymbolTable struct {
	byAddr map[uint64]string
	byName map[string]uint64
}

// NewSymbolTable indexes syms. Unnamed symbols are ignored.
func NewSymbolTable(syms []Symbol) *SymbolTable {
	t := &SymbolTable{
		byAddr: make(map[uint64]string, len(syms)),
		byName: make(map[string]uint64, len(syms)),
	}
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		if _, ok := t.byAddr[s.Addr]; !ok {
			t.byAddr[s.Addr] = s.Name
		}
		if _, ok := t.byName[s.Name]; !ok {
			t.byName[s.Name] = s.Addr
		}
	}
	return t
}

// SymbolAt returns the symbol defined exactly at addr.
func (t *SymbolTable) SymbolAt(addr uint64) (string, bool) {
	name, ok := t.byAddr[addr]
	return name, ok
}

// AddrOf returns the address of the named symbol.
func (t *SymbolTable) AddrOf(name string) (uint64, bool) {
	addr, ok := t.byName[name]
	return addr, ok
}

// Len returns the number of distinct symbol names.
func (t *SymbolTable) Len() int {
	return len(t.byName)
}

// HostAddresses returns the tohost and fromhost addresses, zero when
// absent.
func (t *SymbolTable) HostAddresses() (toHost, fromHost uint64) {
	toHost, _ = t.AddrOf(SymbolToHost)
	fromHost, _ = t.AddrOf(SymbolFromHost)
	return toHost, fromHost
}
