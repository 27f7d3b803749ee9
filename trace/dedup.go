package trace

import "github.com/sarchlab/rvcommit/commit"

// Deduper suppresses a commit that repeats the previous one. The hardware
// can present the same retirement on several evaluation passes of one
// cycle; those repeats agree on PC, instruction, destination and value.
type Deduper struct {
	valid bool
	pc    uint64
	inst  uint32
	dst   uint8
	value uint64
}

// Repeat reports whether ev matches the previous event. A non-repeating
// event becomes the new reference.
func (d *Deduper) Repeat(ev *commit.Event) bool {
	pc, value := ev.SignedPC(), ev.Scalar()
	if d.valid && d.pc == pc && d.inst == ev.Inst && d.dst == ev.Dst && d.value == value {
		return true
	}

	d.valid = true
	d.pc, d.inst, d.dst, d.value = pc, ev.Inst, ev.Dst, value
	return false
}

// Reset forgets the previous event.
func (d *Deduper) Reset() {
	d.valid = false
}
