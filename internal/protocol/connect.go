package protocol

import (
	"maps"
	"slices"
)

// Handshake defaults reported by this node.
const (
	DefaultRole      = "node"
	DefaultMode      = "node"
	DefaultLocale    = "en-US"
	DefaultUserAgent = "billbot-node/1.0.0"
	ClientVersion    = "1.0.0"
)

// ConnectOptions describes the node for NewConnectRequest.
type ConnectOptions struct {
	ClientID    string
	Platform    string
	Locale      string
	UserAgent   string
	Caps        []string
	Commands    []string
	Permissions map[string]bool

	// Token is the gateway bearer token. Empty sends "auth": null.
	Token string

	Device DeviceInfo
}

// NewConnectRequest builds a handshake request with every collection
// field non-nil so it encodes as [] or {} rather than null.
func NewConnectRequest(id string, opts ConnectOptions) *ConnectRequest {
	locale := opts.Locale
	if locale == "" {
		locale = DefaultLocale
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var auth *AuthInfo
	if opts.Token != "" {
		token := opts.Token
		auth = &AuthInfo{Token: &token}
	}

	perms := make(map[string]bool, len(opts.Permissions))
	maps.Copy(perms, opts.Permissions)

	return &ConnectRequest{
		Type:   TypeRequest,
		ID:     id,
		Method: MethodConnect,
		Params: ConnectParams{
			MinProtocol: Version,
			MaxProtocol: Version,
			Client: ClientInfo{
				ID:       opts.ClientID,
				Version:  ClientVersion,
				Platform: opts.Platform,
				Mode:     DefaultMode,
			},
			Role:        DefaultRole,
			Scopes:      []string{},
			Caps:        nonNil(opts.Caps),
			Commands:    nonNil(opts.Commands),
			Permissions: perms,
			Auth:        auth,
			Locale:      locale,
			UserAgent:   userAgent,
			Device:      opts.Device,
		},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
