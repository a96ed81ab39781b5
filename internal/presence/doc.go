// Package presence mirrors the node's state onto MQTT.
//
// The Service publishes three things under billbot/node/{deviceId}/:
//
//   - status: retained gateway connection status, republished on every
//     state change and after each broker reconnect
//   - capabilities: retained capability descriptors, republished when a
//     provider registers or deregisters
//   - command: one non-retained event per executed gateway command
//
// It also listens on control for {"action":"connect"} and
// {"action":"disconnect"} so a remote operator can drive the gateway
// connection without the local API.
//
// The broker's last will on the status topic (set by the mqtt package)
// covers the node vanishing without a graceful shutdown.
package presence
