package identity

import "errors"

var (
	// ErrKeyGeneration is returned when a new keypair cannot be created.
	ErrKeyGeneration = errors.New("identity: key generation failed")

	// ErrSigningFailed is returned when the challenge cannot be signed.
	ErrSigningFailed = errors.New("identity: signing failed")

	// ErrInvalidSignature is returned when an assertion does not verify.
	ErrInvalidSignature = errors.New("identity: invalid signature")

	// ErrKeyNotFound is returned by a KeyStore that holds no key for the device.
	ErrKeyNotFound = errors.New("identity: key not found")
)
