package commit

import "github.com/sarchlab/akita/v4/sim"

// Hook positions at which a driver publishes stream entries. The hook
// item is always an *Entry.
var (
	HookPosCommit    = &sim.HookPos{Name: "Commit"}
	HookPosCSRChange = &sim.HookPos{Name: "CSRChange"}
	HookPosAMOWrite  = &sim.HookPos{Name: "AMOWrite"}
)

// HookPosOf returns the hook position that entries of kind k are published
// at.
func HookPosOf(k Kind) *sim.HookPos {
	switch k {
	case KindCommit:
		return HookPosCommit
	case KindCSRChange:
		return HookPosCSRChange
	case KindAMOWrite:
		return HookPosAMOWrite
	}
	return nil
}
