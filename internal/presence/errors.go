package presence

import "errors"

var (
	// ErrInvalidControl indicates a control message could not be parsed.
	ErrInvalidControl = errors.New("presence: invalid control message")

	// ErrUnknownAction indicates a control message named an unsupported action.
	ErrUnknownAction = errors.New("presence: unknown control action")
)
