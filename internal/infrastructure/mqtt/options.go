package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/billbot/node/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// Offline reasons carried in status payloads.
const (
	ReasonUnexpected = "unexpected_disconnect"
	ReasonShutdown   = "graceful_shutdown"
)

// buildClientOptions creates paho MQTT options from node config.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT makes the broker mark the node offline if it disconnects
// without a graceful Close. QoS 1, retained.
func configureLWT(opts *pahomqtt.ClientOptions, deviceID string) {
	opts.SetWill(Topics{}.NodeStatus(deviceID), string(buildOfflinePayload(deviceID, ReasonUnexpected)), 1, true)
}

// OfflinePayload is the status message published when the node goes away.
type OfflinePayload struct {
	Online     bool   `json:"online"`
	Connection string `json:"connection"`
	DeviceID   string `json:"device_id"`
	Reason     string `json:"reason"`
	Timestamp  string `json:"timestamp"`
}

func buildOfflinePayload(deviceID, reason string) []byte {
	data, _ := json.Marshal(OfflinePayload{ //nolint:errcheck // plain struct always marshals
		Online:     false,
		Connection: "Disconnected",
		DeviceID:   deviceID,
		Reason:     reason,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	return data
}
