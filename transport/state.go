package transport

// State represents the connection state of a Client.
type State uint8

const (
	// StateDisconnected indicates no active connection. Start may be called.
	StateDisconnected State = iota

	// StateConnecting indicates a connect sequence is in progress.
	StateConnecting

	// StateConnected indicates an open socket.
	StateConnected

	// StateClosed indicates Close was called. The client cannot be restarted.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
