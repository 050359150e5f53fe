// Package control applies user intents to the timer store: creating and
// deleting timers, single-timer actions and per-category bulk actions.
package control

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/metrics"
	"github.com/goodtune/ktimer/internal/store"
	"github.com/goodtune/ktimer/internal/timer"
)

// ErrInvalidDuration is returned when a duration string cannot be parsed.
var ErrInvalidDuration = errors.New("invalid duration")

// Outcome of an action on one timer.
const (
	ResultApplied  = "applied"
	ResultSkipped  = "skipped"
	ResultNotFound = "not_found"
)

// Controller is the single entry point for user-initiated changes.
type Controller struct {
	store  *store.Store
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a controller over st.
func New(st *store.Store, logger zerolog.Logger) *Controller {
	return &Controller{
		store:  st,
		now:    time.Now,
		logger: logger.With().Str("component", "control").Logger(),
	}
}

// CreateRequest describes a timer to create. Duration accepts a bare number
// of minutes ("25") or a Go duration ("90s", "1h30m").
type CreateRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Duration     string `json:"duration"`
	HalfwayAlert bool   `json:"halfwayAlert"`
}

// maxMinutes bounds bare minute counts to what a time.Duration can hold.
const maxMinutes = float64(math.MaxInt64) / float64(time.Minute)

// ParseDuration parses a user supplied duration. Bare numbers are minutes.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}
	if minutes, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		if minutes >= maxMinutes {
			return 0, fmt.Errorf("%w: %q is too long", ErrInvalidDuration, s)
		}
		d := time.Duration(minutes * float64(time.Minute))
		if d <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidDuration, s)
		}
		return d.Round(time.Second), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidDuration, s)
	}
	return d, nil
}

// CreateTimer validates req and adds an idle timer. A category that does not
// exist yet is added to the category set.
func (c *Controller) CreateTimer(req CreateRequest) (timer.Timer, error) {
	d, err := ParseDuration(req.Duration)
	if err != nil {
		return timer.Timer{}, err
	}
	t, err := timer.New(timer.Params{
		Name:         req.Name,
		Category:     req.Category,
		Duration:     d,
		HalfwayAlert: req.HalfwayAlert,
	}, c.now())
	if err != nil {
		return timer.Timer{}, err
	}
	if err := c.store.AddTimer(t); err != nil {
		return timer.Timer{}, err
	}

	c.logger.Info().
		Str("timer_id", t.ID).
		Str("timer_name", t.Name).
		Str("category", t.Category).
		Int("duration", t.Duration).
		Msg("Timer created")
	return t, nil
}

// ActionResult reports what a single-timer action did.
type ActionResult struct {
	Timer   timer.Timer `json:"timer"`
	Found   bool        `json:"found"`
	Applied bool        `json:"applied"`
}

// Apply performs action on the timer with the given id. An unknown id is
// not an error; the result just reports Found false.
func (c *Controller) Apply(id string, action timer.Action) (ActionResult, error) {
	var res ActionResult
	err := c.store.Update(func(tx *store.Tx) error {
		t, ok := tx.Timer(id)
		if !ok {
			return nil
		}
		res.Found = true
		next, applied, err := applyOne(tx, t, action)
		res.Timer, res.Applied = next, applied
		return err
	})
	if err != nil {
		return ActionResult{}, err
	}

	result := outcome(res.Found, res.Applied)
	metrics.ActionsTotal.WithLabelValues(string(action), result).Inc()
	c.logger.Debug().
		Str("timer_id", id).
		Str("action", string(action)).
		Str("result", result).
		Msg("Timer action")
	return res, nil
}

// BulkResult reports what a category action did.
type BulkResult struct {
	Category string        `json:"category"`
	Action   timer.Action  `json:"action"`
	Matched  int           `json:"matched"`
	Applied  int           `json:"applied"`
	Timers   []timer.Timer `json:"timers"`
}

// ApplyCategory performs action on every timer in category as one store
// transaction. Timers for which the action does not apply are skipped.
func (c *Controller) ApplyCategory(category string, action timer.Action) (BulkResult, error) {
	res := BulkResult{Category: category, Action: action, Timers: []timer.Timer{}}
	err := c.store.Update(func(tx *store.Tx) error {
		for _, t := range tx.TimersInCategory(category) {
			res.Matched++
			next, applied, err := applyOne(tx, t, action)
			if err != nil {
				return err
			}
			if applied {
				res.Applied++
			}
			res.Timers = append(res.Timers, next)
		}
		return nil
	})
	if err != nil {
		return BulkResult{Category: category, Action: action, Timers: []timer.Timer{}}, err
	}

	metrics.ActionsTotal.WithLabelValues(string(action), ResultApplied).Add(float64(res.Applied))
	metrics.ActionsTotal.WithLabelValues(string(action), ResultSkipped).Add(float64(res.Matched - res.Applied))
	c.logger.Info().
		Str("category", category).
		Str("action", string(action)).
		Int("matched", res.Matched).
		Int("applied", res.Applied).
		Msg("Bulk action")
	return res, nil
}

// applyOne is the transition shared by single and bulk actions.
func applyOne(tx *store.Tx, t timer.Timer, action timer.Action) (timer.Timer, bool, error) {
	next, applied := t.Apply(action)
	if !applied {
		return t, false, nil
	}
	if _, err := tx.Commit(next); err != nil {
		return t, false, err
	}
	return next, true, nil
}

// Delete removes a timer. Completion logs are kept.
func (c *Controller) Delete(id string) bool {
	found := c.store.DeleteTimer(id)
	if found {
		c.logger.Info().Str("timer_id", id).Msg("Timer deleted")
	}
	return found
}

// AddCategory adds a category to the set.
func (c *Controller) AddCategory(name string) (bool, error) {
	added, err := c.store.AddCategory(name)
	if err != nil {
		return false, err
	}
	if added {
		c.logger.Info().Str("category", strings.TrimSpace(name)).Msg("Category added")
	}
	return added, nil
}

func outcome(found, applied bool) string {
	switch {
	case !found:
		return ResultNotFound
	case applied:
		return ResultApplied
	default:
		return ResultSkipped
	}
}
