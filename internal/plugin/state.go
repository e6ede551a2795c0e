package plugin

// State is a plugin's position in the lifecycle.
type State int

// Lifecycle states, in order. A plugin whose Initialize fails stays
// Discovered; Shutdown is terminal either way.
const (
	StateDiscovered State = iota
	StateInitialized
	StateShutDown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateInitialized:
		return "initialized"
	case StateShutDown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// canTransition reports whether moving from s to next is legal.
func (s State) canTransition(next State) bool {
	switch s {
	case StateDiscovered:
		return next == StateInitialized || next == StateShutDown
	case StateInitialized:
		return next == StateShutDown
	default:
		return false
	}
}
