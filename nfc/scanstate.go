package nfc

// ScanPhase is the phase of the scan state machine.
type ScanPhase int

const (
	ScanIdle ScanPhase = iota
	ScanScanning
	ScanWriting
	ScanSuccess
	ScanTagRegistered
	ScanError
)

var scanPhaseNames = map[ScanPhase]string{
	ScanIdle:          "idle",
	ScanScanning:      "scanning",
	ScanWriting:       "writing",
	ScanSuccess:       "success",
	ScanTagRegistered: "tag_registered",
	ScanError:         "error",
}

func (p ScanPhase) String() string {
	if name, ok := scanPhaseNames[p]; ok {
		return name
	}
	return "unknown"
}

func (p ScanPhase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether the phase is left only by an explicit reset.
func (p ScanPhase) Terminal() bool {
	return p == ScanSuccess || p == ScanTagRegistered || p == ScanError
}

// ScanState is the UI-facing scan status. Tag is set for Success and
// TagRegistered, Err for Error.
type ScanState struct {
	Phase ScanPhase
	Tag   *RegisteredTag
	Err   *NFCError
}

func IdleState() ScanState     { return ScanState{Phase: ScanIdle} }
func ScanningState() ScanState { return ScanState{Phase: ScanScanning} }
func WritingState() ScanState  { return ScanState{Phase: ScanWriting} }

func SuccessState(tag RegisteredTag) ScanState {
	return ScanState{Phase: ScanSuccess, Tag: &tag}
}

func RegisteredState(tag RegisteredTag) ScanState {
	return ScanState{Phase: ScanTagRegistered, Tag: &tag}
}

func ErrorState(err *NFCError) ScanState {
	return ScanState{Phase: ScanError, Err: err}
}

// Transition triggers of the scan state machine.
type ScanTrigger int

const (
	TriggerEnable ScanTrigger = iota
	TriggerDisable
	TriggerWrite
	TriggerComplete
	TriggerReset
	TriggerReject
	// TriggerFinish lands the outcome of a run accepted while dispatching
	// after dispatch was disabled.
	TriggerFinish
)

// CanTransition reports whether trigger may move the machine from one phase
// to another.
func CanTransition(from, to ScanPhase, trigger ScanTrigger) bool {
	switch trigger {
	case TriggerReject:
		return to == ScanError
	case TriggerReset:
		return to == ScanIdle || to == ScanScanning
	case TriggerEnable:
		return from == ScanIdle && to == ScanScanning
	case TriggerWrite:
		return (from == ScanIdle || from == ScanScanning) && to == ScanWriting
	case TriggerDisable:
		return (from == ScanScanning || from == ScanWriting) && to == ScanIdle
	case TriggerComplete:
		return (from == ScanScanning || from == ScanWriting) && to.Terminal()
	case TriggerFinish:
		return from == ScanIdle && to.Terminal()
	default:
		return false
	}
}
