package protocol

import "errors"

// ErrMalformedFrame is returned when a frame is not a JSON object of the
// expected shape.
var ErrMalformedFrame = errors.New("protocol: malformed frame")
