// Package settings persists the node's gateway connection settings.
//
// A single row holds the gateway host, port and token, the display name,
// the device id assigned on first run and the device token issued by the
// gateway. Settings are read at connect time, so a save takes effect on
// the next connection attempt without a restart.
//
// The device id is write-once: SetDeviceID refuses to replace a stored id
// with a different one.
package settings
