package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/ktimer/internal/storage"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ktimer.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store, path
}

func TestSetGetDelete(t *testing.T) {
	store, _ := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if _, err := store.Get(ctx, "timerState"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, value := range []string{"first", "second"} {
		if err := store.Set(ctx, "timerState", value); err != nil {
			t.Fatalf("set %s: %v", value, err)
		}
	}
	value, err := store.Get(ctx, "timerState")
	if err != nil || value != "second" {
		t.Fatalf("get = %q, %v; want second", value, err)
	}

	if err := store.Delete(ctx, "timerState"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "timerState"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store, path := openTestStore(t)
	if err := store.Set(context.Background(), "timerState", "kept"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = store.Close() }()

	var versions int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&versions); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if versions != len(getMigrations()) {
		t.Errorf("migrations recorded = %d, want %d", versions, len(getMigrations()))
	}

	value, err := store.Get(context.Background(), "timerState")
	if err != nil || value != "kept" {
		t.Fatalf("after reopen got %q, %v", value, err)
	}
}
