package presence

import (
	"time"

	"github.com/billbot/node/internal/capability"
	"github.com/billbot/node/internal/dispatch"
	"github.com/billbot/node/internal/gateway"
)

// Control actions accepted on the control topic.
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
)

// StatusPayload is the retained message on the status topic. Its shape
// matches the mqtt package's offline payload so subscribers decode both.
type StatusPayload struct {
	Online     bool   `json:"online"`
	Connection string `json:"connection"`
	State      string `json:"state"`
	LastError  string `json:"last_error,omitempty"`
	DeviceID   string `json:"device_id"`
	Gateway    string `json:"gateway,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// CapabilitiesPayload is the retained message on the capabilities topic.
type CapabilitiesPayload struct {
	DeviceID     string                  `json:"device_id"`
	Capabilities []capability.Descriptor `json:"capabilities"`
	Timestamp    string                  `json:"timestamp"`
}

// CommandEvent is published once per executed command.
type CommandEvent struct {
	ID         string  `json:"id"`
	Method     string  `json:"method"`
	OK         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Timestamp  string  `json:"timestamp"`
}

// ControlMessage is received on the control topic.
type ControlMessage struct {
	Action string `json:"action"`
}

func statusPayload(deviceID string, st gateway.Status, now time.Time) StatusPayload {
	return StatusPayload{
		Online:     true,
		Connection: string(st.Connection),
		State:      string(st.State),
		LastError:  st.LastError,
		DeviceID:   deviceID,
		Gateway:    st.Gateway,
		Timestamp:  now.UTC().Format(time.RFC3339),
	}
}

func commandEvent(r dispatch.Result) CommandEvent {
	return CommandEvent{
		ID:         r.ID,
		Method:     dispatch.MethodLabel(r.Method),
		OK:         r.OK,
		Error:      r.Error,
		DurationMS: float64(r.Duration) / float64(time.Millisecond),
		Timestamp:  r.At.UTC().Format(time.RFC3339Nano),
	}
}
