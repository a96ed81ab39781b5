package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence for the settings row.
type Repository interface {
	// Load returns the stored settings, or ErrNotFound before seeding.
	Load(ctx context.Context) (*Settings, error)

	// Save writes the user-editable fields. The device id and device token
	// are left untouched.
	Save(ctx context.Context, s *Settings) error

	// DeviceID returns the stored device id, or "" if none is assigned.
	DeviceID(ctx context.Context) (string, error)

	// SetDeviceID assigns the device id once.
	SetDeviceID(ctx context.Context, id string) error

	// SetDeviceToken stores the token issued by the gateway.
	SetDeviceToken(ctx context.Context, token string) error
}

// SQLiteRepository implements Repository on the node_settings table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed settings repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Load returns the settings row.
func (r *SQLiteRepository) Load(ctx context.Context) (*Settings, error) {
	var s Settings
	var updatedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT gateway_host, gateway_port, gateway_token, display_name, device_id, device_token, updated_at
		 FROM node_settings WHERE id = 1`,
	).Scan(&s.GatewayHost, &s.GatewayPort, &s.GatewayToken, &s.DisplayName,
		&s.DeviceID, &s.DeviceToken, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &s, nil
}

// Save writes the user-editable fields after validating them.
func (r *SQLiteRepository) Save(ctx context.Context, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE node_settings
		 SET gateway_host = ?, gateway_port = ?, gateway_token = ?, display_name = ?, updated_at = ?
		 WHERE id = 1`,
		s.GatewayHost, s.GatewayPort, s.GatewayToken, s.DisplayName, now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.UpdatedAt, _ = time.Parse(time.RFC3339, now.Format(time.RFC3339)) //nolint:errcheck // format is controlled
	return nil
}

// DeviceID returns the stored device id.
func (r *SQLiteRepository) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, "SELECT device_id FROM node_settings WHERE id = 1").Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("loading device id: %w", err)
	}
	return id, nil
}

// SetDeviceID assigns the device id. Writing the same id again is a no-op;
// writing a different one returns ErrDeviceIDImmutable.
func (r *SQLiteRepository) SetDeviceID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE node_settings SET device_id = ?, updated_at = ?
		 WHERE id = 1 AND (device_id = '' OR device_id = ?)`,
		id, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("setting device id: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting device id: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Either the row is missing or another id is already assigned.
	if _, err := r.DeviceID(ctx); err != nil {
		return err
	}
	return ErrDeviceIDImmutable
}

// SetDeviceToken stores the gateway-issued device token.
func (r *SQLiteRepository) SetDeviceToken(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE node_settings SET device_token = ?, updated_at = ? WHERE id = 1",
		token, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("setting device token: %w", err)
	}
	return requireRow(res)
}

// insertDefaults creates the settings row if it does not exist.
// It reports whether a row was inserted.
func (r *SQLiteRepository) insertDefaults(ctx context.Context, s Settings) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO node_settings
		 (id, gateway_host, gateway_port, gateway_token, display_name, device_id, device_token, updated_at)
		 VALUES (1, ?, ?, ?, ?, '', '', ?)`,
		s.GatewayHost, s.GatewayPort, s.GatewayToken, s.DisplayName,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("seeding settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seeding settings: %w", err)
	}
	return n == 1, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
