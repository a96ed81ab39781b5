// Package telemetry forwards command results and connection state changes
// to a time-series writer such as *influxdb.Client.
package telemetry
