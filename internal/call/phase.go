package call

// Phase is the authoritative lifecycle state of one screening call.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseReady      Phase = "ready"
	PhaseConnecting Phase = "connecting"
	PhaseActive     Phase = "active"
	PhaseEnding     Phase = "ending"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
	PhaseExpired    Phase = "expired"
)

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseError, PhaseExpired:
		return true
	default:
		return false
	}
}

var transitions = map[Phase][]Phase{
	PhaseLoading:    {PhaseReady, PhaseExpired, PhaseError},
	PhaseReady:      {PhaseConnecting, PhaseError},
	PhaseConnecting: {PhaseActive, PhaseEnding, PhaseError},
	PhaseActive:     {PhaseEnding, PhaseError},
	PhaseEnding:     {PhaseCompleted, PhaseError},
}

// canTransition checks the lifecycle table. Anything not listed is a defect
// in the caller, not a user-reachable state.
func canTransition(from, to Phase) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
