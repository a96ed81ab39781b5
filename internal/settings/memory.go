package settings

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository. It backs nodes started
// without a database and is handy in tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	s      Settings
	seeded bool
}

// NewMemoryRepository returns a repository already holding s.
func NewMemoryRepository(s Settings) *MemoryRepository {
	return &MemoryRepository{s: s, seeded: true}
}

// Load returns a copy of the stored settings.
func (m *MemoryRepository) Load(_ context.Context) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.seeded {
		return nil, ErrNotFound
	}
	s := m.s
	return &s, nil
}

// Save writes the user-editable fields.
func (m *MemoryRepository) Save(_ context.Context, s *Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seeded {
		return ErrNotFound
	}
	m.s.GatewayHost = s.GatewayHost
	m.s.GatewayPort = s.GatewayPort
	m.s.GatewayToken = s.GatewayToken
	m.s.DisplayName = s.DisplayName
	m.s.UpdatedAt = time.Now().UTC()
	s.UpdatedAt = m.s.UpdatedAt
	return nil
}

// DeviceID returns the stored device id.
func (m *MemoryRepository) DeviceID(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.seeded {
		return "", ErrNotFound
	}
	return m.s.DeviceID, nil
}

// SetDeviceID assigns the device id once.
func (m *MemoryRepository) SetDeviceID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seeded {
		return ErrNotFound
	}
	if m.s.DeviceID != "" && m.s.DeviceID != id {
		return ErrDeviceIDImmutable
	}
	m.s.DeviceID = id
	return nil
}

// SetDeviceToken stores the gateway-issued device token.
func (m *MemoryRepository) SetDeviceToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seeded {
		return ErrNotFound
	}
	m.s.DeviceToken = token
	return nil
}
