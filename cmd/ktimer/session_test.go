package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goodtune/ktimer/internal/config"
	"github.com/goodtune/ktimer/internal/control"
	"github.com/goodtune/ktimer/internal/timer"
)

func testStorageConfig(t *testing.T, kind string) config.StorageConfig {
	t.Helper()
	return config.StorageConfig{
		Type: kind,
		Path: filepath.Join(t.TempDir(), "ktimer.db"),
		Key:  "timerState",
	}
}

// useTempConfig points configPath at a config whose storage lives in a
// temp dir for the duration of the test.
func useTempConfig(t *testing.T, storageType string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  type: " + storageType + "\n  path: " + filepath.Join(dir, "state.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })
}

func TestSessionPersistsAcrossRuns(t *testing.T) {
	for _, kind := range []string{"bolt", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			useTempConfig(t, kind)

			var id string
			err := withSession(func(s *session) error {
				tm, err := s.controller.CreateTimer(control.CreateRequest{Name: "Focus", Category: "Work", Duration: "2s"})
				if err != nil {
					return err
				}
				id = tm.ID
				_, err = s.controller.Apply(id, timer.ActionStart)
				return err
			})
			if err != nil {
				t.Fatalf("first session: %v", err)
			}

			err = withSession(func(s *session) error {
				tm, ok := s.store.Timer(id)
				if !ok {
					t.Fatalf("timer %s not persisted", id)
				}
				if tm.Status != timer.StatusRunning || tm.RemainingTime != 2 {
					t.Errorf("reloaded timer = %+v", tm)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("second session: %v", err)
			}
		})
	}
}

func TestTickCommandCompletesTimer(t *testing.T) {
	useTempConfig(t, "bolt")

	var id string
	err := withSession(func(s *session) error {
		tm, err := s.controller.CreateTimer(control.CreateRequest{Name: "Short", Category: "Break", Duration: "3s"})
		if err != nil {
			return err
		}
		id = tm.ID
		_, err = s.controller.Apply(id, timer.ActionStart)
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	tickSteps = 5
	t.Cleanup(func() { tickSteps = 1 })
	if err := runTick(tickCmd, nil); err != nil {
		t.Fatalf("runTick: %v", err)
	}

	err = withSession(func(s *session) error {
		tm, _ := s.store.Timer(id)
		if tm.Status != timer.StatusCompleted || tm.RemainingTime != 0 {
			t.Errorf("timer = %+v", tm)
		}
		logs := s.store.Logs()
		if len(logs) != 1 || logs[0].TimerID != id || logs[0].Duration != 3 {
			t.Errorf("logs = %+v", logs)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestStateClear(t *testing.T) {
	useTempConfig(t, "bolt")

	if err := withSession(func(s *session) error {
		_, err := s.controller.AddCategory("Music")
		return err
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := runStateClear(stateClearCmd, nil); err == nil {
		t.Fatal("clear without --yes should fail")
	}

	clearYes = true
	t.Cleanup(func() { clearYes = false })
	if err := runStateClear(stateClearCmd, nil); err != nil {
		t.Fatalf("runStateClear: %v", err)
	}

	if err := withSession(func(s *session) error {
		for _, c := range s.store.Categories() {
			if c == "Music" {
				t.Error("cleared state still has added category")
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
