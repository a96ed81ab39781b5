package identity

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/billbot/node/internal/infrastructure/config"
	"github.com/billbot/node/internal/infrastructure/database"
	"github.com/billbot/node/internal/settings"
	"github.com/billbot/node/migrations"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "identity.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestSQLiteKeyStore(t *testing.T) {
	store := NewSQLiteKeyStore(testDB(t).DB)
	ctx := context.Background()

	if _, err := store.LoadKey(ctx, "dev-1"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("LoadKey() error = %v, want ErrKeyNotFound", err)
	}

	if err := store.SaveKey(ctx, "dev-1", &StoredKey{Sealed: []byte{1, 2, 3}, PublicKey: []byte{4, 5}}); err != nil {
		t.Fatalf("SaveKey() error = %v", err)
	}
	if err := store.SaveKey(ctx, "dev-1", &StoredKey{Sealed: []byte{9}, PublicKey: []byte{8}}); err != nil {
		t.Fatalf("SaveKey() replace error = %v", err)
	}

	got, err := store.LoadKey(ctx, "dev-1")
	if err != nil {
		t.Fatalf("LoadKey() error = %v", err)
	}
	if !bytes.Equal(got.Sealed, []byte{9}) || !bytes.Equal(got.PublicKey, []byte{8}) {
		t.Errorf("LoadKey() = %+v, want replaced key", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestManager_SQLiteRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	repo := settings.NewSQLiteRepository(db.DB)
	if _, err := settings.Seed(ctx, repo, settings.Defaults(), discardSlog()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	keys := NewSQLiteKeyStore(db.DB)
	first, err := newTestManager(t, keys, repo).Identity(ctx)
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}

	stored, err := keys.LoadKey(ctx, first.ID)
	if err != nil {
		t.Fatalf("LoadKey() error = %v", err)
	}
	if bytes.Contains(stored.Sealed, []byte("PRIVATE KEY")) {
		t.Error("private key must not be stored in the clear")
	}

	second, err := newTestManager(t, keys, repo).Identity(ctx)
	if err != nil {
		t.Fatalf("Identity() after reopen error = %v", err)
	}
	if !bytes.Equal(first.PublicKey, second.PublicKey) || first.ID != second.ID {
		t.Error("identity should survive a restart")
	}
}
