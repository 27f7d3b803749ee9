package trace

// Signature holds the last committed value of each register index.
//
// Integer and floating-point writebacks share the same 32 slots, so an FP
// write to f5 overwrites the value recorded for x5. This matches the
// hardware interface, which reports both through one destination index.
// It is suspected to be a defect rather than intent.
type Signature [32]uint64

// Update overwrites the value recorded for idx.
func (s *Signature) Update(idx uint8, value uint64) {
	s[idx&31] = value
}

// Read returns the value recorded for idx.
func (s *Signature) Read(idx uint8) uint64 {
	return s[idx&31]
}
