package capability

import "errors"

var (
	// ErrGestureCancelled is returned by Gesture.Await after Cancel.
	ErrGestureCancelled = errors.New("capability: gesture cancelled")

	// ErrServiceExists is returned when a service name is started twice.
	ErrServiceExists = errors.New("capability: service already started")

	// ErrServiceNotFound is returned when stopping an unknown service.
	ErrServiceNotFound = errors.New("capability: service not found")

	// ErrNoContract is returned when a service implements no provider contract.
	ErrNoContract = errors.New("capability: service implements no provider contract")
)
