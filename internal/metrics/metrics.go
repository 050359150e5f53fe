package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Tick metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktimer_ticks_total",
			Help: "Total tick steps applied by the engine",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ktimer_tick_duration_seconds",
			Help:    "Time spent applying one tick",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	RunningTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ktimer_running_timers",
			Help: "Number of timers currently running",
		},
	)

	StoredTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ktimer_stored_timers",
			Help: "Number of timers in the store",
		},
	)

	CompletionLogs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ktimer_completion_logs",
			Help: "Number of completion log entries in the store",
		},
	)

	// Lifecycle metrics
	TimersCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ktimer_timers_completed_total",
			Help: "Total timers that reached zero",
		},
		[]string{"category"},
	)

	HalfwayAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ktimer_halfway_alerts_total",
			Help: "Total halfway alerts raised",
		},
		[]string{"category"},
	)

	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ktimer_actions_total",
			Help: "User actions by outcome",
		},
		[]string{"action", "result"},
	)

	// Persistence metrics
	PersistWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktimer_persist_writes_total",
			Help: "Successful state snapshot writes",
		},
	)

	PersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktimer_persist_errors_total",
			Help: "Failed state snapshot writes",
		},
	)

	// Notification metrics
	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktimer_notifications_dropped_total",
			Help: "Notifications dropped because a subscriber was full",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		TicksTotal,
		TickDuration,
		RunningTimers,
		StoredTimers,
		CompletionLogs,
		TimersCompleted,
		HalfwayAlerts,
		ActionsTotal,
		PersistWrites,
		PersistErrors,
		NotificationsDropped,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
