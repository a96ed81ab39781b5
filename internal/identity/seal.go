package identity

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// sealer encrypts key material with an age scrypt passphrase recipient.
type sealer struct {
	passphrase string
	workFactor int
}

func (s sealer) seal(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.workFactor > 0 {
		recipient.SetWorkFactor(s.workFactor)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initialising encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalising encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (s sealer) open(ciphertext []byte) ([]byte, error) {
	identity, err := age.NewScryptIdentity(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	if s.workFactor > 0 {
		identity.SetMaxWorkFactor(max(s.workFactor, defaultMaxWorkFactor))
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	return plaintext, nil
}

// defaultMaxWorkFactor matches age's own limit for scrypt identities.
const defaultMaxWorkFactor = 22
