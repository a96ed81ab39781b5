package gateway

import "errors"

// Domain errors.
var (
	ErrAlreadyConnected = errors.New("gateway: connection already active")
	ErrNoGateway        = errors.New("gateway: host not configured")
	ErrSessionClosed    = errors.New("gateway: session closed by gateway")
	errSessionReleased  = errors.New("gateway: session released")
)

// TransportError reports a socket failure. The session is closed and not
// retried by the Manager.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "gateway: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandshakeRejectedError carries the error string of a connect response
// with ok=false.
type HandshakeRejectedError struct {
	Message string
}

func (e *HandshakeRejectedError) Error() string {
	return "gateway: handshake rejected: " + e.Message
}

// IsRejected reports whether err is a handshake rejection.
func IsRejected(err error) bool {
	var rejected *HandshakeRejectedError
	return errors.As(err, &rejected)
}

// errorText is the user-facing form of err.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var rejected *HandshakeRejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}
	return err.Error()
}
