package identity

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// Verify checks an assertion against the public key it carries. It is the
// gateway side of the handshake and is used in tests and diagnostics.
func Verify(a *SignedAssertion) error {
	pub, err := base64.StdEncoding.DecodeString(a.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: decoding public key: %v", ErrInvalidSignature, err)
	}
	sig, err := base64.StdEncoding.DecodeString(a.Signature)
	if err != nil {
		return fmt.Errorf("%w: decoding signature: %v", ErrInvalidSignature, err)
	}

	data := []byte(CanonicalString(a.DeviceID, a.Nonce, a.SignedAt))
	if !VerifySignature(pub, data, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySignature reports whether sig is a valid SHA256withRSA signature of
// data under the PKIX DER encoded public key.
func VerifySignature(publicKey, data, sig []byte) bool {
	parsed, err := x509.ParsePKIXPublicKey(publicKey)
	if err != nil {
		return false
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return false
	}

	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}
