package gateway

import "time"

// State is a connection lifecycle state.
type State string

// Connection states.
const (
	StateIdle              State = "idle"
	StateConnecting        State = "connecting"
	StateAwaitingChallenge State = "awaiting_challenge"
	StateHandshaking       State = "handshaking"
	StateConnected         State = "connected"
	StateClosing           State = "closing"
	StateFailed            State = "failed"
)

// Connection is the coarse status shown to users.
type Connection string

// User-visible connection values.
const (
	Disconnected Connection = "Disconnected"
	Connecting   Connection = "Connecting"
	Connected    Connection = "Connected"
)

// Connection maps s to its user-visible value.
func (s State) Connection() Connection {
	switch s {
	case StateConnecting, StateAwaitingChallenge, StateHandshaking:
		return Connecting
	case StateConnected:
		return Connected
	default:
		return Disconnected
	}
}

// StateChange describes one transition.
type StateChange struct {
	From State
	To   State
	Err  error
	At   time.Time
}

// Status is a snapshot of the manager.
type Status struct {
	State      State            `json:"state"`
	Connection Connection       `json:"connection"`
	LastError  string           `json:"last_error,omitempty"`
	Since      time.Time        `json:"since"`
	Protocol   int              `json:"protocol,omitempty"`
	Policy     map[string]int64 `json:"policy,omitempty"`
	DeviceID   string           `json:"device_id,omitempty"`
	Gateway    string           `json:"gateway,omitempty"`
}
