package settings

import "errors"

var (
	// ErrNotFound is returned when the settings row has not been seeded.
	ErrNotFound = errors.New("settings: not found")

	// ErrInvalidPort is returned for a gateway port outside 1-65535.
	ErrInvalidPort = errors.New("settings: gateway port must be between 1 and 65535")

	// ErrInvalidDisplayName is returned for an empty display name.
	ErrInvalidDisplayName = errors.New("settings: display name must not be empty")

	// ErrDeviceIDImmutable is returned when a different device id is written
	// over an existing one.
	ErrDeviceIDImmutable = errors.New("settings: device id already assigned")
)
