// Package dispatch executes gateway commands against the capability registry.
//
// A Dispatcher maps an InvokeRequest method to a provider call and always
// produces an InvokeResponse: unknown methods, missing providers, provider
// errors and panics are all reported in the response rather than returned.
//
// Supported methods:
//
//	screenshot  -> {format: "png", base64}
//	ui_tree     -> {tree: <JSON node forest>}
//	tap         -> {success}   params x, y
//	swipe       -> {success}   params x1, y1, x2, y2, durationMs (default 500)
//	type        -> {success}   param text
//	press       -> {success}   param key: back | home | recents
//	launch      -> {success}   param package
//
// Numeric parameters that are missing or unparseable are read as 0.
//
// Every dispatch is reported to the optional Recorder and Observer hooks,
// which feed InfluxDB telemetry and MQTT command events.
package dispatch
