package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reconnect policies understood by the gateway supervisor.
const (
	// ReconnectManual connects at most once on startup and never retries.
	ReconnectManual = "manual"

	// ReconnectBackoff retries failed or dropped sessions with exponential backoff.
	ReconnectBackoff = "backoff"
)

// minPassphraseLength is the shortest accepted identity passphrase.
const minPassphraseLength = 16

// Config is the root configuration structure for BillBot Node.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node         NodeConfig         `yaml:"node"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Identity     IdentityConfig     `yaml:"identity"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	API          APIConfig          `yaml:"api"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// NodeConfig describes how this node presents itself to the gateway.
type NodeConfig struct {
	// DisplayName seeds the persisted display name on first run.
	DisplayName string `yaml:"display_name"`

	// DeviceID overrides the derived device identifier. Leave empty to derive
	// it from stable platform attributes.
	DeviceID string `yaml:"device_id"`

	// ClientID is reported as client.id in the connect request.
	ClientID string `yaml:"client_id"`

	// Platform is reported as client.platform in the connect request.
	Platform string `yaml:"platform"`

	Locale string `yaml:"locale"`
}

// GatewayConfig contains the gateway endpoint and session policy.
// Host, port and token seed the persisted settings on first run; afterwards
// the persisted values win.
type GatewayConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Token       string `yaml:"token"`
	TLS         bool   `yaml:"tls"`
	AutoConnect bool   `yaml:"auto_connect"`

	// HandshakeTimeout bounds the wait for the challenge and connect response
	// (seconds). 0 waits indefinitely.
	HandshakeTimeout int `yaml:"handshake_timeout"`

	// PingInterval is how often a connected session pings the gateway
	// (seconds). 0 disables keepalive.
	PingInterval int `yaml:"ping_interval"`

	// PongTimeout is the extra wait for a reply after PingInterval (seconds).
	PongTimeout int `yaml:"pong_timeout"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig controls the gateway supervisor.
type ReconnectConfig struct {
	Policy       string `yaml:"policy"`
	InitialDelay int    `yaml:"initial_delay"`
	MaxDelay     int    `yaml:"max_delay"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

// IdentityConfig contains device key settings.
type IdentityConfig struct {
	// Passphrase encrypts the device private key at rest.
	// Set via BILLBOT_IDENTITY_PASSPHRASE rather than in the config file.
	Passphrase string `yaml:"passphrase"`

	// ScryptWorkFactor is the log2 scrypt cost used when sealing the key.
	ScryptWorkFactor int `yaml:"scrypt_work_factor"`
}

// CapabilitiesConfig selects the capability providers to start.
type CapabilitiesConfig struct {
	ADB ADBConfig `yaml:"adb"`
}

// ADBConfig configures the Android Debug Bridge providers.
type ADBConfig struct {
	Enabled bool   `yaml:"enabled"`
	Binary  string `yaml:"binary"`
	Serial  string `yaml:"serial"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains local control API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Token    string           `yaml:"token"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BILLBOT_SECTION_KEY
// For example: BILLBOT_GATEWAY_HOST, BILLBOT_IDENTITY_PASSPHRASE
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			DisplayName: "BillBot Node",
			ClientID:    "billbot-node",
			Platform:    "android",
			Locale:      "en-US",
		},
		Gateway: GatewayConfig{
			Port:         18789,
			AutoConnect:  true,
			PingInterval: 30,
			PongTimeout:  10,
			Reconnect: ReconnectConfig{
				Policy:       ReconnectManual,
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Identity: IdentityConfig{
			ScryptWorkFactor: 18,
		},
		Capabilities: CapabilitiesConfig{
			ADB: ADBConfig{
				Binary: "adb",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/billbot-node.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "billbot-node",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18790,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("BILLBOT_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("BILLBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("BILLBOT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}

	// Identity - passphrase should always come from the environment in production
	if v := os.Getenv("BILLBOT_IDENTITY_PASSPHRASE"); v != "" {
		cfg.Identity.Passphrase = v
	}

	// Database
	if v := os.Getenv("BILLBOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BILLBOT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BILLBOT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BILLBOT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BILLBOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("BILLBOT_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}

	// ADB
	if v := os.Getenv("BILLBOT_ADB_SERIAL"); v != "" {
		cfg.Capabilities.ADB.Serial = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ClientID == "" {
		errs = append(errs, "node.client_id is required")
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 1 and 65535")
	}
	if c.Gateway.HandshakeTimeout < 0 {
		errs = append(errs, "gateway.handshake_timeout must not be negative")
	}
	if c.Gateway.PingInterval < 0 {
		errs = append(errs, "gateway.ping_interval must not be negative")
	}
	if c.Gateway.PingInterval > 0 && c.Gateway.PongTimeout < 1 {
		errs = append(errs, "gateway.pong_timeout must be at least 1 when ping_interval is set")
	}
	switch c.Gateway.Reconnect.Policy {
	case ReconnectManual, ReconnectBackoff:
	default:
		errs = append(errs, fmt.Sprintf("gateway.reconnect.policy must be %q or %q", ReconnectManual, ReconnectBackoff))
	}

	// The device private key is sealed with this passphrase. An empty or short
	// passphrase would leave the key effectively unprotected on disk.
	if c.Identity.Passphrase == "" {
		errs = append(errs, "identity.passphrase is required (set BILLBOT_IDENTITY_PASSPHRASE environment variable)")
	} else if len(c.Identity.Passphrase) < minPassphraseLength {
		errs = append(errs, fmt.Sprintf("identity.passphrase must be at least %d characters", minPassphraseLength))
	}
	if c.Identity.ScryptWorkFactor < 1 || c.Identity.ScryptWorkFactor > 30 {
		errs = append(errs, "identity.scrypt_work_factor must be between 1 and 30")
	}

	if c.Capabilities.ADB.Enabled && c.Capabilities.ADB.Binary == "" {
		errs = append(errs, "capabilities.adb.binary is required when adb is enabled")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetPingInterval returns the gateway keepalive interval as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.Gateway.PingInterval) * time.Second
}

// GetPongTimeout returns the gateway pong timeout as a Duration.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.Gateway.PongTimeout) * time.Second
}

// GetHandshakeTimeout returns the gateway handshake timeout as a Duration.
func (c *Config) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.Gateway.HandshakeTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
