// Package api exposes the timer store over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/control"
	"github.com/goodtune/ktimer/internal/notify"
	"github.com/goodtune/ktimer/internal/store"
	"github.com/goodtune/ktimer/internal/timer"
)

// Config holds the API server settings.
type Config struct {
	ListenAddr string
	// StreamBuffer is the per-client buffer of the notification stream.
	StreamBuffer int
}

// Server is the JSON API server.
type Server struct {
	config      Config
	store       *store.Store
	controller  *control.Controller
	broadcaster *notify.Broadcaster
	server      *http.Server
	router      *mux.Router
	listener    net.Listener // Optional pre-created listener (for systemd socket activation)
	logger      zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, st *store.Store, controller *control.Controller, broadcaster *notify.Broadcaster, logger zerolog.Logger) *Server {
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 16
	}

	s := &Server{
		config:      cfg,
		store:       st,
		controller:  controller,
		broadcaster: broadcaster,
		router:      mux.NewRouter(),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	timers := &timersHandler{store: s.store, controller: s.controller, logger: s.logger.With().Str("handler", "timers").Logger()}
	s.router.HandleFunc("/api/timers", timers.List).Methods("GET")
	s.router.HandleFunc("/api/timers", timers.Create).Methods("POST")
	s.router.HandleFunc("/api/timers/{id}", timers.Get).Methods("GET")
	s.router.HandleFunc("/api/timers/{id}", timers.Delete).Methods("DELETE")
	s.router.HandleFunc("/api/timers/{id}/{action}", timers.Action).Methods("POST")

	s.router.HandleFunc("/api/categories", timers.Categories).Methods("GET")
	s.router.HandleFunc("/api/categories", timers.AddCategory).Methods("POST")
	s.router.HandleFunc("/api/categories/{name}/{action}", timers.Bulk).Methods("POST")

	logs := &logsHandler{store: s.store, logger: s.logger.With().Str("handler", "logs").Logger()}
	s.router.HandleFunc("/api/logs", logs.List).Methods("GET")
	s.router.HandleFunc("/api/logs/export", logs.Export).Methods("GET")

	if s.broadcaster != nil {
		events := &eventsHandler{broadcaster: s.broadcaster, buffer: s.config.StreamBuffer, logger: s.logger.With().Str("handler", "events").Logger()}
		s.router.HandleFunc("/api/notifications", events.Stream).Methods("GET")
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := 0
	timers := s.store.Timers()
	for _, t := range timers {
		if t.Status == timer.StatusRunning {
			running++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"timers":  len(timers),
		"running": running,
	})
}
