// Package gateway maintains the node's WebSocket session with the gateway.
//
// A Manager owns at most one connection. Connect dials the gateway, waits for
// the opaque challenge frame, answers it with a signed connect request and
// blocks until the gateway accepts or rejects the handshake:
//
//	Idle -> Connecting -> AwaitingChallenge -> Handshaking -> Connected
//	Connected -> Closing -> Idle      (Disconnect)
//	Connected -> Idle                 (close frame from the gateway)
//	any non-Idle state -> Failed      (transport error, rejection, signing failure)
//
// While connected a single read loop decodes frames. Each command request is
// dispatched in its own goroutine and answered through a write mutex, so at
// most one frame is written at a time. Releasing the session cancels the
// context handed to in-flight commands; their responses are discarded.
//
// The Manager never reconnects on its own. A Supervisor drives Connect
// according to the configured reconnect policy.
package gateway
