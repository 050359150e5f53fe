// Package persist loads and saves the whole store snapshot as one JSON
// document under a single key.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/storage"
	"github.com/goodtune/ktimer/internal/store"
	"github.com/goodtune/ktimer/internal/timer"
)

// StateKey is the storage key of the snapshot.
const StateKey = "timerState"

// Source tells where a loaded state came from.
type Source int

const (
	// SourceStored means the stored snapshot was used.
	SourceStored Source = iota
	// SourceEmpty means nothing was stored yet.
	SourceEmpty
	// SourceMalformed means the stored snapshot could not be decoded.
	SourceMalformed
	// SourceUnavailable means the backend could not be read.
	SourceUnavailable
)

func (s Source) String() string {
	switch s {
	case SourceStored:
		return "stored"
	case SourceEmpty:
		return "empty"
	case SourceMalformed:
		return "malformed"
	case SourceUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Gateway reads and writes snapshots through a storage.KV.
type Gateway struct {
	kv         storage.KV
	key        string
	categories []string
	logger     zerolog.Logger
}

// NewGateway creates a gateway. An empty key means StateKey. categories are
// used when the stored snapshot has none.
func NewGateway(kv storage.KV, key string, categories []string, logger zerolog.Logger) *Gateway {
	if key == "" {
		key = StateKey
	}
	return &Gateway{
		kv:         kv,
		key:        key,
		categories: categories,
		logger:     logger.With().Str("component", "persist").Logger(),
	}
}

// Load reads the stored snapshot. It never fails: a missing, unreadable or
// malformed snapshot yields the default state.
func (g *Gateway) Load(ctx context.Context) (store.State, Source) {
	data, err := g.kv.Get(ctx, g.key)
	if errors.Is(err, storage.ErrNotFound) {
		g.logger.Info().Str("key", g.key).Msg("No stored state, starting fresh")
		return store.DefaultState(g.categories...), SourceEmpty
	}
	if err != nil {
		g.logger.Error().Err(err).Str("key", g.key).Msg("Failed to read stored state, starting fresh")
		return store.DefaultState(g.categories...), SourceUnavailable
	}

	state, err := Decode([]byte(data), g.categories, g.logger)
	if err != nil {
		g.logger.Warn().Err(err).Str("key", g.key).Msg("Stored state is malformed, starting fresh")
		return store.DefaultState(g.categories...), SourceMalformed
	}

	g.logger.Info().
		Int("timers", len(state.Timers)).
		Int("logs", len(state.Logs)).
		Int("categories", len(state.Categories)).
		Msg("Loaded stored state")
	return state, SourceStored
}

// Save writes state as the new snapshot.
func (g *Gateway) Save(ctx context.Context, state store.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}
	if err := g.kv.Set(ctx, g.key, string(data)); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot.
func (g *Gateway) Clear(ctx context.Context) error {
	if err := g.kv.Delete(ctx, g.key); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// Encode serializes a snapshot.
func Encode(state store.State) ([]byte, error) {
	data, err := json.Marshal(state.Clone())
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// rawState defers timer decoding so one bad timer does not sink the blob.
type rawState struct {
	Timers     []json.RawMessage `json:"timers"`
	Logs       []timer.Log       `json:"logs"`
	Categories []string          `json:"categories"`
}

// Decode parses a snapshot. Timers that fail to decode or validate, and
// repeated timer ids, are dropped with a warning. An empty category list is
// replaced by categories, or the built-in defaults.
func Decode(data []byte, categories []string, logger zerolog.Logger) (store.State, error) {
	var raw rawState
	if err := json.Unmarshal(data, &raw); err != nil {
		return store.State{}, fmt.Errorf("decode state: %w", err)
	}

	state := store.DefaultState(raw.Categories...)
	if len(raw.Categories) == 0 || len(state.Categories) == 0 {
		state = store.DefaultState(categories...)
	}

	seen := make(map[string]bool, len(raw.Timers))
	for i, msg := range raw.Timers {
		var t timer.Timer
		if err := json.Unmarshal(msg, &t); err != nil {
			logger.Warn().Err(err).Int("index", i).Msg("Dropping undecodable timer")
			continue
		}
		if err := t.Validate(); err != nil {
			logger.Warn().Err(err).Str("timer_id", t.ID).Msg("Dropping invalid timer")
			continue
		}
		if seen[t.ID] {
			logger.Warn().Str("timer_id", t.ID).Msg("Dropping timer with repeated id")
			continue
		}
		seen[t.ID] = true
		state.Timers = append(state.Timers, t)
	}

	if raw.Logs != nil {
		state.Logs = raw.Logs
	}
	return state, nil
}
