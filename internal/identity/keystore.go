package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StoredKey is a persisted keypair with the private half sealed.
type StoredKey struct {
	Sealed    []byte
	PublicKey []byte
	CreatedAt time.Time
}

// KeyStore persists the device keypair.
type KeyStore interface {
	// LoadKey returns the key stored for deviceID, or ErrKeyNotFound.
	LoadKey(ctx context.Context, deviceID string) (*StoredKey, error)

	// SaveKey stores or replaces the key for deviceID.
	SaveKey(ctx context.Context, deviceID string, key *StoredKey) error
}

// SQLiteKeyStore implements KeyStore on the device_keys table.
type SQLiteKeyStore struct {
	db *sql.DB
}

// NewSQLiteKeyStore creates a SQLite-backed key store.
func NewSQLiteKeyStore(db *sql.DB) *SQLiteKeyStore {
	return &SQLiteKeyStore{db: db}
}

// LoadKey returns the stored key for deviceID.
func (s *SQLiteKeyStore) LoadKey(ctx context.Context, deviceID string) (*StoredKey, error) {
	var k StoredKey
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT sealed_key, public_key, created_at FROM device_keys WHERE id = ?", deviceID,
	).Scan(&k.Sealed, &k.PublicKey, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("loading device key: %w", err)
	}

	k.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	return &k, nil
}

// SaveKey stores the key for deviceID, replacing any previous one.
func (s *SQLiteKeyStore) SaveKey(ctx context.Context, deviceID string, key *StoredKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_keys (id, sealed_key, public_key, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   sealed_key = excluded.sealed_key,
		   public_key = excluded.public_key,
		   created_at = excluded.created_at`,
		deviceID, key.Sealed, key.PublicKey, key.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving device key: %w", err)
	}
	return nil
}
