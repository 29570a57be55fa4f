package transport

// State is a connection lifecycle state reported by a Client.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnected
	StateReconnecting
	StateFailed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChange is delivered to state listeners on every transition.
// Attempt is the number of consecutive failed connection attempts.
type StateChange struct {
	State   State
	Attempt int
	Err     error
}
