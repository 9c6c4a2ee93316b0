package session

// State is the orchestrator lifecycle:
// CREATED → RUNNING → STOPPING → STOPPED, with CANCELLED reachable from
// any non-terminal state. STOPPED and CANCELLED are terminal.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s State) terminal() bool {
	return s == StateStopped || s == StateCancelled
}
