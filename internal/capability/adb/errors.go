package adb

import "errors"

var (
	// ErrDeviceNotReady is returned by Start when adb does not report the
	// device as online.
	ErrDeviceNotReady = errors.New("adb: device not ready")

	// ErrInvalidScreenshot is returned when screencap output is not a PNG.
	ErrInvalidScreenshot = errors.New("adb: screencap output is not a PNG image")

	// ErrInvalidHierarchy is returned when the uiautomator dump has no
	// parsable hierarchy.
	ErrInvalidHierarchy = errors.New("adb: invalid ui hierarchy dump")
)
