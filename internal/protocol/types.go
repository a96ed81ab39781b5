package protocol

// Envelope types.
const (
	TypeRequest  = "req"
	TypeResponse = "res"
)

// MethodConnect is the handshake request method.
const MethodConnect = "connect"

// Version is the only protocol revision this node speaks.
const Version = 3

// ConnectRequest is the handshake request sent after the challenge.
type ConnectRequest struct {
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Method string        `json:"method"`
	Params ConnectParams `json:"params"`
}

// ConnectParams describes the node to the gateway.
type ConnectParams struct {
	MinProtocol int             `json:"minProtocol"`
	MaxProtocol int             `json:"maxProtocol"`
	Client      ClientInfo      `json:"client"`
	Role        string          `json:"role"`
	Scopes      []string        `json:"scopes"`
	Caps        []string        `json:"caps"`
	Commands    []string        `json:"commands"`
	Permissions map[string]bool `json:"permissions"`
	Auth        *AuthInfo       `json:"auth"`
	Locale      string          `json:"locale"`
	UserAgent   string          `json:"userAgent"`
	Device      DeviceInfo      `json:"device"`
}

// ClientInfo identifies the client software.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// AuthInfo carries the gateway bearer token.
type AuthInfo struct {
	Token *string `json:"token"`
}

// DeviceInfo is the signed device assertion.
type DeviceInfo struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce"`
}

// ConnectResponse is the gateway's answer to a ConnectRequest.
type ConnectResponse struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload *ConnectPayload `json:"payload"`
	Error   *string         `json:"error"`
}

// ErrorMessage returns the error string, or "" when absent.
func (r *ConnectResponse) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// ConnectPayload holds the negotiated session parameters.
type ConnectPayload struct {
	Type     string           `json:"type"`
	Protocol int              `json:"protocol"`
	Policy   map[string]int64 `json:"policy"`
	Auth     *AuthResponse    `json:"auth"`
}

// AuthResponse carries the credential issued to this device.
type AuthResponse struct {
	DeviceToken string   `json:"deviceToken"`
	Role        string   `json:"role"`
	Scopes      []string `json:"scopes"`
}

// InvokeRequest is a command sent by the gateway.
type InvokeRequest struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

// InvokeResponse is the node's reply to an InvokeRequest.
type InvokeResponse struct {
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	OK      bool              `json:"ok"`
	Payload map[string]string `json:"payload"`
	Error   *string           `json:"error"`
}

// ErrorMessage returns the error string, or "" when absent.
func (r *InvokeResponse) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Success builds an ok response for request id.
func Success(id string, payload map[string]string) InvokeResponse {
	if payload == nil {
		payload = map[string]string{}
	}
	return InvokeResponse{Type: TypeResponse, ID: id, OK: true, Payload: payload}
}

// Failure builds a failed response for request id.
func Failure(id, message string) InvokeResponse {
	return InvokeResponse{Type: TypeResponse, ID: id, OK: false, Error: &message}
}
