package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestFindUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
storage:
  type: bolt
  pth: /tmp/typo.bolt
engine:
  tick_interval: 1s
  tick_rate: 2
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys: %v", err)
	}
	want := []string{"engine.tick_rate", "storage.pth"}
	if !slices.Equal(unknown, want) {
		t.Errorf("unknown = %v, want %v", unknown, want)
	}
}

func TestRedactPassword(t *testing.T) {
	if got := redactPassword(""); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := redactPassword("hunter2"); got != "***REDACTED***" {
		t.Errorf("set = %q", got)
	}
}

func TestOpenStorageRejectsUnknownType(t *testing.T) {
	cfg := testStorageConfig(t, "memcached")
	if _, err := openStorage(cfg); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}
