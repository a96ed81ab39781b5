package settings

import (
	"fmt"
	"strings"
	"time"
)

// DefaultGatewayPort is used when nothing else has been configured.
const DefaultGatewayPort = 18789

// DefaultDisplayName is used when nothing else has been configured.
const DefaultDisplayName = "BillBot Node"

// Settings is the persisted node state.
type Settings struct {
	GatewayHost  string    `json:"gateway_host"`
	GatewayPort  int       `json:"gateway_port"`
	GatewayToken string    `json:"gateway_token"`
	DisplayName  string    `json:"display_name"`
	DeviceID     string    `json:"device_id"`
	DeviceToken  string    `json:"device_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Defaults returns settings populated with the built-in defaults.
func Defaults() Settings {
	return Settings{
		GatewayPort: DefaultGatewayPort,
		DisplayName: DefaultDisplayName,
	}
}

// Validate checks the user-editable fields.
func (s *Settings) Validate() error {
	if s.GatewayPort < 1 || s.GatewayPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, s.GatewayPort)
	}
	if strings.TrimSpace(s.DisplayName) == "" {
		return ErrInvalidDisplayName
	}
	return nil
}

// Redacted returns a copy with secrets masked for display.
func (s Settings) Redacted() Settings {
	s.GatewayToken = redact(s.GatewayToken)
	s.DeviceToken = redact(s.DeviceToken)
	return s
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "********"
}

// Patch is a partial update of the user-editable fields. Nil fields are
// left unchanged.
type Patch struct {
	GatewayHost  *string `json:"gateway_host,omitempty"`
	GatewayPort  *int    `json:"gateway_port,omitempty"`
	GatewayToken *string `json:"gateway_token,omitempty"`
	DisplayName  *string `json:"display_name,omitempty"`
}

// Apply copies the non-nil fields of p onto s.
func (s *Settings) Apply(p Patch) {
	if p.GatewayHost != nil {
		s.GatewayHost = strings.TrimSpace(*p.GatewayHost)
	}
	if p.GatewayPort != nil {
		s.GatewayPort = *p.GatewayPort
	}
	if p.GatewayToken != nil {
		s.GatewayToken = *p.GatewayToken
	}
	if p.DisplayName != nil {
		s.DisplayName = strings.TrimSpace(*p.DisplayName)
	}
}
