package scheduler

// State is the phase a stage is in.
type State int

const (
	StateFilling State = iota
	StateWaitingQuota
	StateCalling
	StateIdle
	StateDone
)

func (s State) String() string {
	switch s {
	case StateFilling:
		return "FILLING"
	case StateWaitingQuota:
		return "WAITING_QUOTA"
	case StateCalling:
		return "CALLING"
	case StateIdle:
		return "IDLE"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Reason tells why a stage stopped.
type Reason string

const (
	ReasonDrained         Reason = "drained"
	ReasonSourceExhausted Reason = "source_exhausted"
	ReasonCancelled       Reason = "cancelled"
)
