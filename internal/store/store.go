// Package store holds the single mutable aggregate of timers, completion
// logs and categories. All writes go through Update, which serializes them
// and notifies observers with a fresh snapshot after each change.
package store

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/timer"
)

var (
	// ErrDuplicateID is returned when adding a timer whose id already exists.
	ErrDuplicateID = errors.New("store: duplicate timer id")

	// ErrInvalidCategory is returned for blank category names.
	ErrInvalidCategory = errors.New("store: invalid category")
)

// Observer is told about every committed change. StateChanged runs while
// the store's write lock is held, so it must not block or call back into
// the store.
type Observer interface {
	StateChanged(State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(State)

// StateChanged calls f.
func (f ObserverFunc) StateChanged(s State) { f(s) }

// Store is the timer aggregate.
type Store struct {
	mu         sync.RWMutex
	state      State
	index      map[string]int
	observers  []Observer
	defaults   []string
	logger     zerolog.Logger
	mutationNo uint64
}

// New creates a store seeded with the default categories.
func New(logger zerolog.Logger, categories ...string) *Store {
	s := &Store{
		logger: logger.With().Str("component", "store").Logger(),
	}
	s.state = DefaultState(categories...)
	s.defaults = slices.Clone(s.state.Categories)
	s.reindex()
	return s
}

// Observe registers an observer for subsequent changes.
func (s *Store) Observe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Replace swaps the whole state, as done once after loading a persisted
// snapshot. Observers are not notified.
func (s *Store) Replace(state State) {
	state = state.Clone()
	if len(state.Categories) == 0 {
		state.Categories = slices.Clone(s.defaults)
	} else {
		state.Categories = normalizeCategories(state.Categories)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.reindex()

	s.logger.Debug().
		Int("timers", len(state.Timers)).
		Int("logs", len(state.Logs)).
		Int("categories", len(state.Categories)).
		Msg("State replaced")
}

// Update runs fn as one serialized transaction. If fn returns an error every
// change it made is rolled back. Observers are notified once when fn
// changed something.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.state.Clone()
	tx := &Tx{store: s}
	if err := fn(tx); err != nil {
		s.state = backup
		s.reindex()
		return err
	}
	if !tx.changed {
		return nil
	}

	s.mutationNo++
	if len(s.observers) == 0 {
		return nil
	}
	snapshot := s.state.Clone()
	for _, o := range s.observers {
		o.StateChanged(snapshot)
	}
	return nil
}

// Resync hands the current snapshot to every observer without changing
// anything. Delivery happens under the write lock, like a commit.
func (s *Store) Resync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.observers) == 0 {
		return
	}
	snapshot := s.state.Clone()
	for _, o := range s.observers {
		o.StateChanged(snapshot)
	}
}

// Mutations returns how many changing transactions were committed.
func (s *Store) Mutations() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutationNo
}

// AddTimer inserts a new timer. Its category joins the category set if it
// is not already there.
func (s *Store) AddTimer(t timer.Timer) error {
	return s.Update(func(tx *Tx) error {
		return tx.Add(t)
	})
}

// UpdateTimer replaces the timer with the same id. It reports false, with no
// error, when no such timer exists.
func (s *Store) UpdateTimer(t timer.Timer) (bool, error) {
	var found bool
	err := s.Update(func(tx *Tx) error {
		var err error
		found, err = tx.Commit(t)
		return err
	})
	return found, err
}

// DeleteTimer removes a timer. Logs referring to it are kept.
func (s *Store) DeleteTimer(id string) bool {
	var found bool
	_ = s.Update(func(tx *Tx) error {
		found = tx.Delete(id)
		return nil
	})
	return found
}

// AppendLog appends a completion record.
func (s *Store) AppendLog(l timer.Log) {
	_ = s.Update(func(tx *Tx) error {
		tx.AppendLog(l)
		return nil
	})
}

// AddCategory appends a category. It reports false if it already existed.
func (s *Store) AddCategory(name string) (bool, error) {
	var added bool
	err := s.Update(func(tx *Tx) error {
		var err error
		added, err = tx.AddCategory(name)
		return err
	})
	return added, err
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Timers returns all timers in insertion order.
func (s *Store) Timers() []timer.Timer {
	return s.Snapshot().Timers
}

// Timer looks up a timer by id.
func (s *Store) Timer(id string) (timer.Timer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return timer.Timer{}, false
	}
	return cloneTimer(s.state.Timers[i]), true
}

// TimersInCategory returns the timers tagged with category.
func (s *Store) TimersInCategory(category string) []timer.Timer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterCategory(s.state.Timers, category)
}

// Logs returns the completion history, oldest first.
func (s *Store) Logs() []timer.Log {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Logs)
}

// Categories returns the category set in display order.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Categories)
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.state.Timers))
	for i, t := range s.state.Timers {
		s.index[t.ID] = i
	}
}

func filterCategory(timers []timer.Timer, category string) []timer.Timer {
	out := make([]timer.Timer, 0)
	for _, t := range timers {
		if t.Category == category {
			out = append(out, cloneTimer(t))
		}
	}
	return out
}

// Tx is the mutation handle passed to Update. It must not be used after
// the Update callback returns.
type Tx struct {
	store   *Store
	changed bool
}

// Timers returns the timers as they are at this point of the transaction.
func (tx *Tx) Timers() []timer.Timer {
	out := make([]timer.Timer, len(tx.store.state.Timers))
	for i, t := range tx.store.state.Timers {
		out[i] = cloneTimer(t)
	}
	return out
}

// Timer looks up a timer by id.
func (tx *Tx) Timer(id string) (timer.Timer, bool) {
	i, ok := tx.store.index[id]
	if !ok {
		return timer.Timer{}, false
	}
	return cloneTimer(tx.store.state.Timers[i]), true
}

// TimersInCategory returns the timers tagged with category.
func (tx *Tx) TimersInCategory(category string) []timer.Timer {
	return filterCategory(tx.store.state.Timers, category)
}

// Add inserts a validated timer.
func (tx *Tx) Add(t timer.Timer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, exists := tx.store.index[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
	}
	if _, err := tx.AddCategory(t.Category); err != nil {
		return err
	}

	st := &tx.store.state
	st.Timers = append(st.Timers, cloneTimer(t))
	tx.store.index[t.ID] = len(st.Timers) - 1
	tx.changed = true
	return nil
}

// Commit replaces the timer with the same id. This is the single write path
// for timer state, shared by user actions and the tick engine. It reports
// false when the timer no longer exists. Duration, createdAt and
// halfwayAlert never change, and a completed timer stays completed.
func (tx *Tx) Commit(t timer.Timer) (bool, error) {
	i, ok := tx.store.index[t.ID]
	if !ok {
		return false, nil
	}
	if err := t.Validate(); err != nil {
		return true, err
	}

	current := tx.store.state.Timers[i]
	switch {
	case current.Duration != t.Duration:
		return true, fmt.Errorf("%w: duration of %s is immutable", timer.ErrInvalidTimer, t.ID)
	case !current.CreatedAt.Equal(t.CreatedAt):
		return true, fmt.Errorf("%w: createdAt of %s is immutable", timer.ErrInvalidTimer, t.ID)
	case current.HalfwayAlert != t.HalfwayAlert:
		return true, fmt.Errorf("%w: halfwayAlert of %s is immutable", timer.ErrInvalidTimer, t.ID)
	case current.Status == timer.StatusCompleted && t.Status != timer.StatusCompleted:
		return true, fmt.Errorf("%w: completed timer %s is final", timer.ErrInvalidTimer, t.ID)
	}

	tx.store.state.Timers[i] = cloneTimer(t)
	tx.changed = true
	return true, nil
}

// Delete removes a timer by id.
func (tx *Tx) Delete(id string) bool {
	i, ok := tx.store.index[id]
	if !ok {
		return false
	}
	st := &tx.store.state
	st.Timers = slices.Delete(st.Timers, i, i+1)
	tx.store.reindex()
	tx.changed = true
	return true
}

// AppendLog appends a completion record, filling in a missing id or
// timestamp.
func (tx *Tx) AppendLog(l timer.Log) {
	if l.CompletedAt.IsZero() {
		l.CompletedAt = time.Now().UTC()
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	st := &tx.store.state
	st.Logs = append(st.Logs, l)
	tx.changed = true
}

// AddCategory appends a category if it is not already present.
func (tx *Tx) AddCategory(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	st := &tx.store.state
	if slices.Contains(st.Categories, name) {
		return false, nil
	}
	st.Categories = append(st.Categories, name)
	tx.changed = true
	return true, nil
}
