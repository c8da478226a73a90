package engine

// RunState is the lifecycle state of a run.
type RunState int32

const (
	StatePending RunState = iota
	StateRamping
	StateSteady
	StateDraining
	StateFinished
)

func (s RunState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRamping:
		return "ramping"
	case StateSteady:
		return "steady"
	case StateDraining:
		return "draining"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Exit codes reported by a run.
const (
	ExitOK               = 0
	ExitThresholdsFailed = 99
	ExitConfigError      = 104
	ExitExternalAbort    = 105
)
