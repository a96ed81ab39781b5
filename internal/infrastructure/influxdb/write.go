package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCommands   = "node_commands"
	MeasurementConnection = "node_connection"
)

// WriteCommand records one executed gateway command. method should come
// from a bounded set, as it becomes a tag.
func (c *Client) WriteCommand(deviceID, method string, ok bool, duration time.Duration, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementCommands,
		map[string]string{
			"device_id": deviceID,
			"method":    method,
			"ok":        strconv.FormatBool(ok),
		},
		map[string]interface{}{
			"duration_ms": float64(duration) / float64(time.Millisecond),
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a gateway connection state transition.
func (c *Client) WriteConnectionEvent(deviceID, state string, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementConnection,
		map[string]string{
			"device_id": deviceID,
			"state":     state,
		},
		map[string]interface{}{
			"value": 1,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
}
