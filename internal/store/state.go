package store

import (
	"slices"
	"strings"

	"github.com/goodtune/ktimer/internal/timer"
)

// DefaultCategories seed the category set of a fresh store.
var DefaultCategories = []string{"Work", "Study", "Exercise", "Break"}

// State is a full snapshot of the store. It is also the persisted form.
type State struct {
	Timers     []timer.Timer `json:"timers"`
	Logs       []timer.Log   `json:"logs"`
	Categories []string      `json:"categories"`
}

// DefaultState returns an empty state with the given categories, or the
// built-in defaults when none are supplied.
func DefaultState(categories ...string) State {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return State{
		Timers:     []timer.Timer{},
		Logs:       []timer.Log{},
		Categories: normalizeCategories(categories),
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{
		Timers:     make([]timer.Timer, len(s.Timers)),
		Logs:       slices.Clone(s.Logs),
		Categories: slices.Clone(s.Categories),
	}
	for i, t := range s.Timers {
		out.Timers[i] = cloneTimer(t)
	}
	if out.Logs == nil {
		out.Logs = []timer.Log{}
	}
	if out.Categories == nil {
		out.Categories = []string{}
	}
	return out
}

func cloneTimer(t timer.Timer) timer.Timer {
	if t.CompletedAt != nil {
		completedAt := *t.CompletedAt
		t.CompletedAt = &completedAt
	}
	return t
}

// normalizeCategories trims names and drops blanks and duplicates, keeping
// first-seen order.
func normalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
