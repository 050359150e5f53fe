package timer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a timer.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused, StatusCompleted:
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler and rejects unknown statuses.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	status := Status(strings.ToLower(raw))
	if !status.Valid() {
		return fmt.Errorf("invalid status: %s (must be idle, running, paused, or completed)", raw)
	}
	*s = status
	return nil
}

// Action is a user-initiated transition request.
type Action string

const (
	ActionStart Action = "start"
	ActionPause Action = "pause"
	ActionReset Action = "reset"
)

// ParseAction normalizes and validates an action name.
func ParseAction(s string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(s)))
	switch action {
	case ActionStart, ActionPause, ActionReset:
		return action, nil
	default:
		return "", fmt.Errorf("invalid action: %s (must be start, pause, or reset)", s)
	}
}

// UnmarshalJSON implements json.Unmarshaler to normalize the action name.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	action, err := ParseAction(raw)
	if err != nil {
		return err
	}
	*a = action
	return nil
}

// Event is what a single tick produced for a timer.
type Event int

const (
	EventNone Event = iota
	EventHalfway
	EventCompleted
)

func (e Event) String() string {
	switch e {
	case EventHalfway:
		return "halfway"
	case EventCompleted:
		return "completed"
	default:
		return "none"
	}
}
