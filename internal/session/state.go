package session

// State is the lifecycle phase of the session manager.
type State int

const (
	// StateIdle means no session exists. Start is allowed; Hangup is a
	// no-op.
	StateIdle State = iota

	// StateStarting means resource acquisition is in progress. A failure
	// at any step rolls back already-acquired resources and returns to
	// idle.
	StateStarting

	// StateActive means the duplex stream is running.
	StateActive

	// StateClosing means teardown is in progress. Concurrent closure
	// attempts observe this state and return without acting.
	StateClosing
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}
