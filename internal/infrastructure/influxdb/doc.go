// Package influxdb writes node telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// produced by the node itself:
//
//   - node_commands: one point per executed gateway command, tagged with
//     device_id, method and ok, carrying duration_ms
//   - node_connection: one point per gateway connection state change,
//     tagged with device_id and state
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteCommand(deviceID, "tap", true, 42*time.Millisecond, time.Now())
//
// Writes are batched according to batch_size and flush_interval. Errors from
// batched writes are delivered to the SetOnError callback; connection and
// health check errors are returned directly.
package influxdb
