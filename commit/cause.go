package commit

// Synchronous trap causes (mcause values with the interrupt bit clear).
const (
	CauseMisalignedFetch    uint64 = 0x0
	CauseFaultFetch         uint64 = 0x1
	CauseIllegalInstruction uint64 = 0x2
	CauseBreakpoint         uint64 = 0x3
	CauseMisalignedLoad     uint64 = 0x4
	CauseFaultLoad          uint64 = 0x5
	CauseMisalignedStore    uint64 = 0x6
	CauseFaultStore         uint64 = 0x7
	CauseUserEcall          uint64 = 0x8
	CauseSupervisorEcall    uint64 = 0x9
	CauseMachineEcall       uint64 = 0xB
	CauseInstrPageFault     uint64 = 0xC
	CauseLoadPageFault      uint64 = 0xD
	CauseStoreAMOPageFault  uint64 = 0xF
)

// InterruptBit marks an asynchronous cause.
const InterruptBit uint64 = 1 << 63

// Interrupt causes.
const (
	CauseSupervisorSoftwareInterrupt = InterruptBit | 1
	CauseMachineSoftwareInterrupt    = InterruptBit | 3
	CauseSupervisorTimerInterrupt    = InterruptBit | 5
	CauseMachineTimerInterrupt       = InterruptBit | 7
	CauseSupervisorExternalInterrupt = InterruptBit | 9
	CauseMachineExternalInterrupt    = InterruptBit | 11
)

// IsEcall reports whether cause is one of the environment-call causes.
func IsEcall(cause uint64) bool {
	return cause == CauseUserEcall ||
		cause == CauseSupervisorEcall ||
		cause == CauseMachineEcall
}
