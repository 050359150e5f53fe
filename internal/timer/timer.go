// Package timer holds the countdown entity, its completion log record and
// the lifecycle transitions shared by manual actions and the tick engine.
package timer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTimer is wrapped by every validation failure.
var ErrInvalidTimer = errors.New("invalid timer")

// Timer is a single countdown unit.
type Timer struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Duration      int        `json:"duration"`
	Category      string     `json:"category"`
	RemainingTime int        `json:"remainingTime"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	HalfwayAlert  bool       `json:"halfwayAlert,omitempty"`
}

// Params describes a timer to be created.
type Params struct {
	Name         string
	Category     string
	Duration     time.Duration
	HalfwayAlert bool
}

// New validates p and returns an idle timer with a fresh id.
func New(p Params, now time.Time) (Timer, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Timer{}, fmt.Errorf("%w: name is required", ErrInvalidTimer)
	}
	category := strings.TrimSpace(p.Category)
	if category == "" {
		return Timer{}, fmt.Errorf("%w: category is required", ErrInvalidTimer)
	}
	if p.Duration%time.Second != 0 {
		return Timer{}, fmt.Errorf("%w: duration %s is not a whole number of seconds", ErrInvalidTimer, p.Duration)
	}
	seconds := int(p.Duration / time.Second)
	if seconds <= 0 {
		return Timer{}, fmt.Errorf("%w: duration must be positive", ErrInvalidTimer)
	}

	return Timer{
		ID:            uuid.NewString(),
		Name:          name,
		Duration:      seconds,
		Category:      category,
		RemainingTime: seconds,
		Status:        StatusIdle,
		CreatedAt:     now.UTC(),
		HalfwayAlert:  p.HalfwayAlert,
	}, nil
}

// Validate checks the entity invariants.
func (t Timer) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidTimer)
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidTimer)
	case strings.TrimSpace(t.Category) == "":
		return fmt.Errorf("%w: category is required", ErrInvalidTimer)
	case t.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidTimer)
	case !t.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTimer, t.Status)
	case t.RemainingTime < 0 || t.RemainingTime > t.Duration:
		return fmt.Errorf("%w: remaining time %d outside [0, %d]", ErrInvalidTimer, t.RemainingTime, t.Duration)
	case (t.RemainingTime == 0) != (t.Status == StatusCompleted):
		return fmt.Errorf("%w: remaining time %d inconsistent with status %s", ErrInvalidTimer, t.RemainingTime, t.Status)
	}
	return nil
}

// Apply returns the timer after a user action. The second result is false
// when the action does not apply in the current state; the timer is then
// returned unchanged. Completed timers accept no action.
func (t Timer) Apply(action Action) (Timer, bool) {
	next := t
	switch action {
	case ActionStart:
		if t.Status != StatusIdle && t.Status != StatusPaused {
			return t, false
		}
		next.Status = StatusRunning
	case ActionPause:
		if t.Status != StatusRunning {
			return t, false
		}
		next.Status = StatusPaused
	case ActionReset:
		if t.Status == StatusCompleted {
			return t, false
		}
		if t.Status == StatusIdle && t.RemainingTime == t.Duration && t.CompletedAt == nil {
			return t, false
		}
		next.Status = StatusIdle
		next.RemainingTime = t.Duration
		next.CompletedAt = nil
	default:
		return t, false
	}
	return next, true
}

// Tick advances a running timer by one second. Timers that are not running
// or have nothing left are returned unchanged with EventNone.
func (t Timer) Tick(now time.Time) (Timer, Event) {
	if t.Status != StatusRunning || t.RemainingTime <= 0 {
		return t, EventNone
	}

	next := t
	next.RemainingTime--
	if next.RemainingTime == 0 {
		completedAt := now.UTC()
		next.Status = StatusCompleted
		next.CompletedAt = &completedAt
		return next, EventCompleted
	}
	if t.HalfwayAlert && next.RemainingTime == t.Halfway() {
		return next, EventHalfway
	}
	return next, EventNone
}

// Halfway is the remaining time at which the halfway alert fires.
func (t Timer) Halfway() int {
	return t.Duration / 2
}

// Progress is the elapsed fraction of the countdown in [0, 1].
func (t Timer) Progress() float64 {
	if t.Duration <= 0 {
		return 1
	}
	progress := float64(t.Duration-t.RemainingTime) / float64(t.Duration)
	if progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}
	return progress
}

// Clock renders the remaining time as m:ss.
func (t Timer) Clock() string {
	return fmt.Sprintf("%d:%02d", t.RemainingTime/60, t.RemainingTime%60)
}
