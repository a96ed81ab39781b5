package identity

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// DefaultKeyBits is the RSA modulus size for new device keys.
	DefaultKeyBits = 2048

	// nonceBytes is the size of a self-generated challenge nonce.
	nonceBytes = 16
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// IDStore persists the device id. The settings repository satisfies it.
type IDStore interface {
	DeviceID(ctx context.Context) (string, error)
	SetDeviceID(ctx context.Context, id string) error
}

// Options configures a Manager.
type Options struct {
	// Passphrase seals the private key at rest. Required.
	Passphrase string

	// WorkFactor is the log2 scrypt cost. Zero uses age's default.
	WorkFactor int

	// DeviceID overrides derivation on first run. Ignored once an id is stored.
	DeviceID string

	// Platform supplies the attributes for derivation. Nil detects the host.
	Platform *Platform

	// KeyBits overrides DefaultKeyBits.
	KeyBits int

	Logger Logger
}

// Manager creates, persists and uses the device identity.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	keys   KeyStore
	ids    IDStore
	sealer sealer
	opts   Options
	logger Logger

	// rand and now are replaceable in tests.
	rand io.Reader
	now  func() time.Time

	mu       sync.Mutex
	identity *DeviceIdentity
}

// NewManager creates a Manager backed by the given stores.
func NewManager(keys KeyStore, ids IDStore, opts Options) (*Manager, error) {
	if keys == nil || ids == nil {
		return nil, errors.New("identity: key store and id store are required")
	}
	if opts.Passphrase == "" {
		return nil, errors.New("identity: passphrase is required")
	}
	if opts.KeyBits == 0 {
		opts.KeyBits = DefaultKeyBits
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Manager{
		keys:   keys,
		ids:    ids,
		sealer: sealer{passphrase: opts.Passphrase, workFactor: opts.WorkFactor},
		opts:   opts,
		logger: logger,
		rand:   rand.Reader,
		now:    time.Now,
	}, nil
}

// Identity returns the device identity, creating and persisting it on the
// first call. Subsequent calls return the cached value.
func (m *Manager) Identity(ctx context.Context) (*DeviceIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity != nil {
		return m.identity, nil
	}

	id, err := m.resolveDeviceID(ctx)
	if err != nil {
		return nil, err
	}

	key, err := m.loadKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if key == nil {
		key, err = m.generateKey(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding public key: %v", ErrKeyGeneration, err)
	}

	m.identity = &DeviceIdentity{ID: id, PublicKey: pub, key: key}
	return m.identity, nil
}

// Assert signs "deviceId:nonce:signedAt" for one connection attempt.
// An empty nonce is replaced by a freshly generated one.
func (m *Manager) Assert(ctx context.Context, nonce string) (*SignedAssertion, error) {
	ident, err := m.Identity(ctx)
	if err != nil {
		return nil, err
	}

	if nonce == "" {
		nonce, err = m.newNonce()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
		}
	}

	signedAt := m.now().UnixMilli()
	digest := sha256.Sum256([]byte(CanonicalString(ident.ID, nonce, signedAt)))

	sig, err := rsa.SignPKCS1v15(m.rand, ident.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return &SignedAssertion{
		DeviceID:  ident.ID,
		PublicKey: ident.PublicKeyBase64(),
		Signature: base64.StdEncoding.EncodeToString(sig),
		SignedAt:  signedAt,
		Nonce:     nonce,
	}, nil
}

func (m *Manager) newNonce() (string, error) {
	return generateNonce(m.rand)
}

func generateNonce(r io.Reader) (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// resolveDeviceID returns the stored id, assigning one on first run.
func (m *Manager) resolveDeviceID(ctx context.Context) (string, error) {
	stored, err := m.ids.DeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("loading device id: %w", err)
	}
	if stored != "" {
		if m.opts.DeviceID != "" && m.opts.DeviceID != stored {
			m.logger.Warn("configured device id ignored, an id is already assigned",
				"configured", m.opts.DeviceID, "device_id", stored)
		}
		return stored, nil
	}

	id := m.opts.DeviceID
	if id == "" {
		p := m.opts.Platform
		if p == nil {
			detected := DetectPlatform()
			p = &detected
		}
		id = DeriveDeviceID(*p)
	}

	if err := m.ids.SetDeviceID(ctx, id); err != nil {
		return "", fmt.Errorf("storing device id: %w", err)
	}
	m.logger.Info("device id assigned", "device_id", id)
	return id, nil
}

// loadKey returns the stored private key, or nil when there is none usable.
// Store errors other than ErrKeyNotFound are returned; unseal and parse
// failures are logged and treated as absent.
func (m *Manager) loadKey(ctx context.Context, id string) (*rsa.PrivateKey, error) {
	stored, err := m.keys.LoadKey(ctx, id)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	der, err := m.sealer.open(stored.Sealed)
	if err != nil {
		m.logger.Warn("stored device key unreadable, regenerating", "device_id", id, "error", err)
		return nil, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		m.logger.Warn("stored device key corrupt, regenerating", "device_id", id, "error", err)
		return nil, nil
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		m.logger.Warn("stored device key is not RSA, regenerating", "device_id", id)
		return nil, nil
	}
	return key, nil
}

func (m *Manager) generateKey(ctx context.Context, id string) (*rsa.PrivateKey, error) {
	start := m.now()
	key, err := rsa.GenerateKey(m.rand, m.opts.KeyBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding private key: %v", ErrKeyGeneration, err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding public key: %v", ErrKeyGeneration, err)
	}

	sealed, err := m.sealer.seal(der)
	if err != nil {
		return nil, fmt.Errorf("sealing device key: %w", err)
	}

	if err := m.keys.SaveKey(ctx, id, &StoredKey{Sealed: sealed, PublicKey: pub}); err != nil {
		return nil, err
	}

	m.logger.Info("device key generated",
		"device_id", id,
		"bits", m.opts.KeyBits,
		"duration_ms", m.now().Sub(start).Milliseconds(),
	)
	return key, nil
}
