package control

import (
	"slices"

	"github.com/goodtune/ktimer/internal/timer"
)

// TimerView is a timer with its display fields.
type TimerView struct {
	timer.Timer
	Clock    string  `json:"clock"`
	Progress float64 `json:"progress"`
}

// NewTimerView derives the display fields of t.
func NewTimerView(t timer.Timer) TimerView {
	return TimerView{Timer: t, Clock: t.Clock(), Progress: t.Progress()}
}

// Group is the timers of one category.
type Group struct {
	Category string      `json:"category"`
	Timers   []TimerView `json:"timers"`
}

// GroupByCategory groups timers following the order of categories. Timers
// whose category is not in the set get groups after the known ones, in
// order of first appearance. Empty groups are kept only if includeEmpty.
func GroupByCategory(categories []string, timers []timer.Timer, includeEmpty bool) []Group {
	order := slices.Clone(categories)
	for _, t := range timers {
		if !slices.Contains(order, t.Category) {
			order = append(order, t.Category)
		}
	}

	groups := make([]Group, 0, len(order))
	for _, name := range order {
		g := Group{Category: name, Timers: []TimerView{}}
		for _, t := range timers {
			if t.Category == name {
				g.Timers = append(g.Timers, NewTimerView(t))
			}
		}
		if len(g.Timers) == 0 && !includeEmpty {
			continue
		}
		groups = append(groups, g)
	}
	return groups
}
