package timer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestTimer(t *testing.T, duration time.Duration, halfway bool) Timer {
	t.Helper()

	tm, err := New(Params{
		Name:         "Focus",
		Category:     "Work",
		Duration:     duration,
		HalfwayAlert: halfway,
	}, testNow)
	if err != nil {
		t.Fatalf("new timer: %v", err)
	}
	return tm
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"missing name", Params{Name: "  ", Category: "Work", Duration: time.Minute}},
		{"missing category", Params{Name: "Focus", Duration: time.Minute}},
		{"zero duration", Params{Name: "Focus", Category: "Work"}},
		{"negative duration", Params{Name: "Focus", Category: "Work", Duration: -time.Second}},
		{"fractional seconds", Params{Name: "Focus", Category: "Work", Duration: 1500 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params, testNow)
			if !errors.Is(err, ErrInvalidTimer) {
				t.Fatalf("New() error = %v, want ErrInvalidTimer", err)
			}
		})
	}
}

func TestNewIdleTimer(t *testing.T) {
	tm := newTestTimer(t, 2*time.Minute, true)

	if tm.ID == "" {
		t.Fatal("expected generated id")
	}
	if tm.Status != StatusIdle {
		t.Errorf("status = %s, want idle", tm.Status)
	}
	if tm.Duration != 120 || tm.RemainingTime != 120 {
		t.Errorf("duration/remaining = %d/%d, want 120/120", tm.Duration, tm.RemainingTime)
	}
	if tm.CompletedAt != nil {
		t.Error("new timer must not have completedAt")
	}
	if err := tm.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestApplyTransitions(t *testing.T) {
	base := newTestTimer(t, time.Minute, false)
	completedAt := testNow

	withStatus := func(status Status, remaining int) Timer {
		tm := base
		tm.Status = status
		tm.RemainingTime = remaining
		if status == StatusCompleted {
			tm.CompletedAt = &completedAt
		}
		return tm
	}

	tests := []struct {
		name          string
		from          Timer
		action        Action
		wantApplied   bool
		wantStatus    Status
		wantRemaining int
	}{
		{"start idle", withStatus(StatusIdle, 60), ActionStart, true, StatusRunning, 60},
		{"start paused", withStatus(StatusPaused, 42), ActionStart, true, StatusRunning, 42},
		{"start running", withStatus(StatusRunning, 42), ActionStart, false, StatusRunning, 42},
		{"start completed", withStatus(StatusCompleted, 0), ActionStart, false, StatusCompleted, 0},
		{"pause running", withStatus(StatusRunning, 30), ActionPause, true, StatusPaused, 30},
		{"pause idle", withStatus(StatusIdle, 60), ActionPause, false, StatusIdle, 60},
		{"pause paused", withStatus(StatusPaused, 30), ActionPause, false, StatusPaused, 30},
		{"pause completed", withStatus(StatusCompleted, 0), ActionPause, false, StatusCompleted, 0},
		{"reset running", withStatus(StatusRunning, 10), ActionReset, true, StatusIdle, 60},
		{"reset paused", withStatus(StatusPaused, 10), ActionReset, true, StatusIdle, 60},
		{"reset fresh idle", withStatus(StatusIdle, 60), ActionReset, false, StatusIdle, 60},
		{"reset completed", withStatus(StatusCompleted, 0), ActionReset, false, StatusCompleted, 0},
		{"unknown action", withStatus(StatusIdle, 60), Action("explode"), false, StatusIdle, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, applied := tt.from.Apply(tt.action)
			if applied != tt.wantApplied {
				t.Errorf("applied = %v, want %v", applied, tt.wantApplied)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if got.RemainingTime != tt.wantRemaining {
				t.Errorf("remaining = %d, want %d", got.RemainingTime, tt.wantRemaining)
			}
			if got.Duration != base.Duration {
				t.Errorf("duration changed to %d", got.Duration)
			}
		})
	}
}

func TestTickCountdownToCompletion(t *testing.T) {
	tm := newTestTimer(t, 3*time.Second, false)
	tm, _ = tm.Apply(ActionStart)

	for want := 2; want >= 1; want-- {
		var ev Event
		tm, ev = tm.Tick(testNow)
		if ev != EventNone {
			t.Fatalf("unexpected event %s at remaining %d", ev, tm.RemainingTime)
		}
		if tm.RemainingTime != want {
			t.Fatalf("remaining = %d, want %d", tm.RemainingTime, want)
		}
	}

	done := testNow.Add(3 * time.Second)
	tm, ev := tm.Tick(done)
	if ev != EventCompleted {
		t.Fatalf("event = %s, want completed", ev)
	}
	if tm.Status != StatusCompleted || tm.RemainingTime != 0 {
		t.Fatalf("got %s/%d, want completed/0", tm.Status, tm.RemainingTime)
	}
	if tm.CompletedAt == nil || !tm.CompletedAt.Equal(done) {
		t.Fatalf("completedAt = %v, want %v", tm.CompletedAt, done)
	}

	again, ev := tm.Tick(done.Add(time.Second))
	if ev != EventNone || again.RemainingTime != 0 || again.Status != StatusCompleted {
		t.Fatalf("completed timer changed on tick: %+v (%s)", again, ev)
	}
}

func TestTickIgnoresNonRunning(t *testing.T) {
	tm := newTestTimer(t, time.Minute, true)
	for _, status := range []Status{StatusIdle, StatusPaused} {
		tm.Status = status
		got, ev := tm.Tick(testNow)
		if ev != EventNone || got.RemainingTime != 60 {
			t.Errorf("%s timer ticked: remaining=%d event=%s", status, got.RemainingTime, ev)
		}
	}
}

func TestTickHalfway(t *testing.T) {
	tests := []struct {
		name        string
		duration    time.Duration
		alert       bool
		wantHalfway int
	}{
		{"even duration", 120 * time.Second, true, 1},
		{"odd duration", 5 * time.Second, true, 1},
		{"two seconds", 2 * time.Second, true, 1},
		{"one second never halfway", time.Second, true, 0},
		{"alert disabled", 120 * time.Second, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := newTestTimer(t, tt.duration, tt.alert)
			tm, _ = tm.Apply(ActionStart)

			halfway, completed := 0, 0
			for tm.Status == StatusRunning {
				var ev Event
				tm, ev = tm.Tick(testNow)
				switch ev {
				case EventHalfway:
					halfway++
					if tm.RemainingTime != tm.Duration/2 {
						t.Errorf("halfway fired at remaining %d", tm.RemainingTime)
					}
				case EventCompleted:
					completed++
				}
			}
			if halfway != tt.wantHalfway {
				t.Errorf("halfway events = %d, want %d", halfway, tt.wantHalfway)
			}
			if completed != 1 {
				t.Errorf("completion events = %d, want 1", completed)
			}
		})
	}
}

func TestHalfwayRearmsAfterReset(t *testing.T) {
	tm := newTestTimer(t, 4*time.Second, true)
	tm, _ = tm.Apply(ActionStart)

	count := 0
	for i := 0; i < 2; i++ {
		tm, _ = tm.Tick(testNow)
	}
	// remaining 2 == halfway of 4
	tm, _ = tm.Apply(ActionReset)
	tm, _ = tm.Apply(ActionStart)
	for tm.Status == StatusRunning {
		var ev Event
		tm, ev = tm.Tick(testNow)
		if ev == EventHalfway {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("halfway after reset fired %d times, want 1", count)
	}
}

func TestValidateInvariant(t *testing.T) {
	tm := newTestTimer(t, time.Minute, false)

	zeroRunning := tm
	zeroRunning.Status = StatusRunning
	zeroRunning.RemainingTime = 0
	if err := zeroRunning.Validate(); !errors.Is(err, ErrInvalidTimer) {
		t.Errorf("running timer with zero remaining validated: %v", err)
	}

	completedWithTime := tm
	completedWithTime.Status = StatusCompleted
	if err := completedWithTime.Validate(); !errors.Is(err, ErrInvalidTimer) {
		t.Errorf("completed timer with time left validated: %v", err)
	}

	over := tm
	over.RemainingTime = 61
	if err := over.Validate(); !errors.Is(err, ErrInvalidTimer) {
		t.Errorf("remaining above duration validated: %v", err)
	}
}

func TestStatusJSON(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`"Running"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != StatusRunning {
		t.Errorf("status = %s, want running", s)
	}
	if err := json.Unmarshal([]byte(`"sleeping"`), &s); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestParseAction(t *testing.T) {
	for _, in := range []string{"start", " PAUSE ", "Reset"} {
		if _, err := ParseAction(in); err != nil {
			t.Errorf("ParseAction(%q) = %v", in, err)
		}
	}
	if _, err := ParseAction("stop"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestNewLogSnapshotsTimer(t *testing.T) {
	tm := newTestTimer(t, 90*time.Second, false)
	log := NewLog(tm, testNow)

	if log.ID == "" || log.ID == tm.ID {
		t.Errorf("log id %q must be fresh", log.ID)
	}
	if log.TimerID != tm.ID || log.TimerName != "Focus" || log.Category != "Work" || log.Duration != 90 {
		t.Errorf("unexpected log %+v", log)
	}
}

func TestClockAndProgress(t *testing.T) {
	tm := newTestTimer(t, 2*time.Minute, false)
	tm.RemainingTime = 65
	if got := tm.Clock(); got != "1:05" {
		t.Errorf("Clock() = %q, want 1:05", got)
	}
	tm.RemainingTime = 30
	if got := tm.Progress(); got != 0.75 {
		t.Errorf("Progress() = %v, want 0.75", got)
	}
}
