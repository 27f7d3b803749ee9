package trace

import (
	"github.com/sarchlab/rvcommit/commit"
	"github.com/sarchlab/rvcommit/insts"
)

// CSRBuffer is the ordered list of CSR changes reported since the last
// rendered commit.
//
// fflags (0x001) entries are special: they stay in the buffer until a
// commit that writes fflags claims them, because the next retirement in the
// same cycle may be the one that produced the flags.
type CSRBuffer struct {
	entries    []commit.CSRChange
	lastFFlags uint64
}

// Push appends a change.
func (b *CSRBuffer) Push(addr, value uint64) {
	b.entries = append(b.entries, commit.CSRChange{Addr: addr, Value: value})
}

// Len returns the number of pending changes.
func (b *CSRBuffer) Len() int {
	return len(b.entries)
}

// LastFFlags returns the most recently claimed fflags value.
func (b *CSRBuffer) LastFFlags() uint64 {
	return b.lastFFlags
}

// DrainFFlags returns the fflags value to print for a commit. When
// fflagsWrite is false nothing is claimed. Otherwise every pending fflags
// entry is removed and the newest is returned and remembered; with no entry
// pending, the remembered value is returned instead.
func (b *CSRBuffer) DrainFFlags(fflagsWrite bool) (uint64, bool) {
	if !fflagsWrite {
		return 0, false
	}

	kept := b.entries[:0]
	for _, c := range b.entries {
		if c.Addr == uint64(insts.CSRFFlags) {
			b.lastFFlags = c.Value
			continue
		}
		kept = append(kept, c)
	}
	b.entries = kept

	return b.lastFFlags, true
}

// DrainRemaining removes and returns every pending change other than
// fflags, in the order they were pushed.
func (b *CSRBuffer) DrainRemaining() []commit.CSRChange {
	var out []commit.CSRChange
	kept := b.entries[:0]
	for _, c := range b.entries {
		if c.Addr == uint64(insts.CSRFFlags) {
			kept = append(kept, c)
			continue
		}
		out = append(out, c)
	}
	b.entries = kept
	return out
}

// Clear drops every pending change, fflags included.
func (b *CSRBuffer) Clear() {
	b.entries = b.entries[:0]
}
