package identity

import (
	"crypto/rsa"
	"encoding/base64"
	"strconv"
)

// DeviceIdentity is the node's stable identifier and public key.
type DeviceIdentity struct {
	ID string

	// PublicKey is the PKIX (X.509 SubjectPublicKeyInfo) DER encoding.
	PublicKey []byte

	key *rsa.PrivateKey
}

// PublicKeyBase64 returns the public key as standard base64 without line breaks.
func (d *DeviceIdentity) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(d.PublicKey)
}

// SignedAssertion proves possession of the device key for one connection
// attempt. All binary values are standard base64.
type SignedAssertion struct {
	DeviceID  string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce"`
}

// CanonicalString builds the signed payload "deviceId:nonce:signedAt".
func CanonicalString(deviceID, nonce string, signedAt int64) string {
	return deviceID + ":" + nonce + ":" + strconv.FormatInt(signedAt, 10)
}
