package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a decoded frame.
type Kind int

const (
	// KindUnknown is any frame whose type is neither req nor res.
	KindUnknown Kind = iota
	KindRequest
	KindResponse
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return TypeRequest
	case KindResponse:
		return TypeResponse
	default:
		return "unknown"
	}
}

// Frame is a classified envelope. Raw keeps the original bytes for typed
// decoding.
type Frame struct {
	Kind   Kind
	Type   string
	ID     string
	Method string
	Raw    []byte
}

// header is the subset of fields common to every envelope.
type header struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
}

// Decode classifies a frame. It fails only when data is not a JSON object
// with string-typed header fields.
func Decode(data []byte) (*Frame, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	f := &Frame{Type: h.Type, ID: h.ID, Method: h.Method, Raw: data}
	switch h.Type {
	case TypeRequest:
		f.Kind = KindRequest
	case TypeResponse:
		f.Kind = KindResponse
	default:
		f.Kind = KindUnknown
	}
	return f, nil
}

// DecodeConnectResponse parses a handshake response. A missing policy
// decodes as an empty map.
func DecodeConnectResponse(data []byte) (*ConnectResponse, error) {
	var r ConnectResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: connect response: %v", ErrMalformedFrame, err)
	}
	if r.Payload != nil && r.Payload.Policy == nil {
		r.Payload.Policy = map[string]int64{}
	}
	return &r, nil
}

// DecodeInvokeRequest parses a command request. Missing params decode as
// an empty map.
func DecodeInvokeRequest(data []byte) (*InvokeRequest, error) {
	var r InvokeRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: invoke request: %v", ErrMalformedFrame, err)
	}
	if r.Params == nil {
		r.Params = map[string]string{}
	}
	return &r, nil
}

// Encode serialises an envelope.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}

// ChallengeNonce extracts a nonce from a challenge frame shaped as
// {"nonce": ...} or {"payload": {"nonce": ...}}. Any other challenge,
// including non-JSON text, yields "".
func ChallengeNonce(challenge []byte) string {
	var c struct {
		Nonce   string `json:"nonce"`
		Payload struct {
			Nonce string `json:"nonce"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(challenge, &c); err != nil {
		return ""
	}
	if c.Nonce != "" {
		return c.Nonce
	}
	return c.Payload.Nonce
}
