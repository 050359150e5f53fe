package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/config"
	"github.com/goodtune/ktimer/internal/control"
	"github.com/goodtune/ktimer/internal/persist"
	"github.com/goodtune/ktimer/internal/storage"
	"github.com/goodtune/ktimer/internal/storage/bolt"
	"github.com/goodtune/ktimer/internal/storage/redis"
	"github.com/goodtune/ktimer/internal/storage/sqlite"
	"github.com/goodtune/ktimer/internal/store"
)

func openStorage(cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Type {
	case "", "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// session is a loaded store for one-shot commands. Changes are saved by
// save; nothing ticks in the meantime.
type session struct {
	cfg        *config.Config
	kv         storage.KV
	gateway    *persist.Gateway
	writer     *persist.Writer
	store      *store.Store
	controller *control.Controller
	logger     zerolog.Logger
}

func openSession() (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Quiet logger for one-shot commands
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	kv, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	timeout := config.Duration(cfg.Storage.SaveTimeout, persist.DefaultSaveTimeout)
	gateway := persist.NewGateway(kv, cfg.Storage.Key, cfg.Timers.DefaultCategories, logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	state, _ := gateway.Load(ctx)
	cancel()

	st := store.New(logger, cfg.Timers.DefaultCategories...)
	st.Replace(state)

	writer := persist.NewWriter(gateway, persist.WriterConfig{SaveTimeout: timeout}, logger)
	st.Observe(writer)

	return &session{
		cfg:        cfg,
		kv:         kv,
		gateway:    gateway,
		writer:     writer,
		store:      st,
		controller: control.New(st, logger),
		logger:     logger,
	}, nil
}

// save writes any pending change.
func (s *session) save() error {
	if err := s.writer.Flush(context.Background()); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	return s.kv.Close()
}

// withSession opens a session, runs fn, saves, and closes.
func withSession(fn func(*session) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := fn(s); err != nil {
		return err
	}
	return s.save()
}
