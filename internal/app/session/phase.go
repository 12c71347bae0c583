package session

// Phase represents the session lifecycle phase.
type Phase int

const (
	PhaseCreated Phase = iota // Built, not started
	PhaseRunning              // Restored and accepting commands
	PhaseClosed               // Torn down
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseRunning:
		return "running"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}
