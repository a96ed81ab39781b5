package settings

import (
	"context"
	"errors"
	"testing"
)

func TestSettings_Apply(t *testing.T) {
	s := Defaults()
	host := "  gateway.lan "
	port := 443
	name := "Tablet"

	s.Apply(Patch{GatewayHost: &host, GatewayPort: &port, DisplayName: &name})

	if s.GatewayHost != "gateway.lan" {
		t.Errorf("GatewayHost = %q, want trimmed value", s.GatewayHost)
	}
	if s.GatewayPort != 443 {
		t.Errorf("GatewayPort = %d, want 443", s.GatewayPort)
	}
	if s.DisplayName != "Tablet" {
		t.Errorf("DisplayName = %q, want Tablet", s.DisplayName)
	}
	if s.GatewayToken != "" {
		t.Error("nil patch field should leave token unchanged")
	}
}

func TestSettings_Redacted(t *testing.T) {
	s := Settings{GatewayToken: "secret", DeviceToken: ""}
	r := s.Redacted()

	if r.GatewayToken == "secret" {
		t.Error("gateway token should be masked")
	}
	if r.DeviceToken != "" {
		t.Error("empty device token should stay empty")
	}
	if s.GatewayToken != "secret" {
		t.Error("Redacted() must not modify the receiver")
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(Defaults())

	s, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	s.GatewayHost = "mem.local"
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := repo.SetDeviceID(ctx, "dev-1"); err != nil {
		t.Fatalf("SetDeviceID() error = %v", err)
	}
	if err := repo.SetDeviceID(ctx, "dev-2"); !errors.Is(err, ErrDeviceIDImmutable) {
		t.Errorf("SetDeviceID() overwrite error = %v, want ErrDeviceIDImmutable", err)
	}
	if err := repo.SetDeviceToken(ctx, "tok"); err != nil {
		t.Fatalf("SetDeviceToken() error = %v", err)
	}

	got, _ := repo.Load(ctx)
	if got.GatewayHost != "mem.local" || got.DeviceID != "dev-1" || got.DeviceToken != "tok" {
		t.Errorf("Load() = %+v", got)
	}

	// Returned values are copies
	got.GatewayHost = "mutated"
	again, _ := repo.Load(ctx)
	if again.GatewayHost != "mem.local" {
		t.Error("Load() should return a copy")
	}
}

func TestMemoryRepository_Empty(t *testing.T) {
	repo := &MemoryRepository{}
	if _, err := repo.Load(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}
