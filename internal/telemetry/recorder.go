package telemetry

import (
	"time"

	"github.com/billbot/node/internal/dispatch"
	"github.com/billbot/node/internal/gateway"
)

// Writer is the time-series sink. *influxdb.Client satisfies it.
type Writer interface {
	WriteCommand(deviceID, method string, ok bool, duration time.Duration, at time.Time)
	WriteConnectionEvent(deviceID, state string, at time.Time)
}

// Recorder implements dispatch.Recorder and observes gateway state changes.
type Recorder struct {
	w        Writer
	deviceID string
}

// NewRecorder returns a Recorder writing points tagged with deviceID.
func NewRecorder(w Writer, deviceID string) *Recorder {
	return &Recorder{w: w, deviceID: deviceID}
}

// RecordCommand writes one command point. Unrecognised methods are folded
// into a single tag value to keep series cardinality bounded.
func (r *Recorder) RecordCommand(res dispatch.Result) {
	at := res.At
	if at.IsZero() {
		at = time.Now()
	}
	r.w.WriteCommand(r.deviceID, dispatch.MethodLabel(res.Method), res.OK, res.Duration, at)
}

// StateChanged writes one connection point. Register it with
// gateway.Manager.OnStateChange.
func (r *Recorder) StateChanged(change gateway.StateChange) {
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	r.w.WriteConnectionEvent(r.deviceID, string(change.To), at)
}
