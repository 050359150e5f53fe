package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/ktimer/internal/api"
	"github.com/goodtune/ktimer/internal/config"
	"github.com/goodtune/ktimer/internal/control"
	"github.com/goodtune/ktimer/internal/engine"
	"github.com/goodtune/ktimer/internal/metrics"
	"github.com/goodtune/ktimer/internal/notify"
	"github.com/goodtune/ktimer/internal/persist"
	"github.com/goodtune/ktimer/internal/store"
	"github.com/goodtune/ktimer/internal/systemd"
)

const shutdownTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start KTimer server",
	Long:  `Start the KTimer server with the tick engine, the HTTP API and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting KTimer")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	kv, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Str("key", cfg.Storage.Key).
		Msg("Storage initialized")

	// Load persisted state
	saveTimeout := config.Duration(cfg.Storage.SaveTimeout, persist.DefaultSaveTimeout)
	gateway := persist.NewGateway(kv, cfg.Storage.Key, cfg.Timers.DefaultCategories, logger)

	loadCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	state, source := gateway.Load(loadCtx)
	cancel()

	st := store.New(logger, cfg.Timers.DefaultCategories...)
	st.Replace(state)

	logger.Info().
		Str("source", source.String()).
		Int("timers", len(state.Timers)).
		Int("logs", len(state.Logs)).
		Msg("State loaded")

	// Persist every committed change
	writer := persist.NewWriter(gateway, persist.WriterConfig{
		RetryInterval: config.Duration(cfg.Engine.RetryInterval, persist.DefaultRetryInterval),
		SaveTimeout:   saveTimeout,
	}, logger)
	st.Observe(writer)
	st.Observe(store.ObserverFunc(recordStoreGauges))
	recordStoreGauges(st.Snapshot())
	writer.Start()

	// Initialize notifications
	broadcaster := notify.NewBroadcaster()
	notifiers := notify.Multi{broadcaster}
	if cfg.Notifications.Log {
		notifiers = append(notifiers, notify.NewLogNotifier(logger))
	}

	// Initialize Tick Engine
	tickEngine := engine.New(st, notifiers, engine.Config{
		Interval: config.Duration(cfg.Engine.TickInterval, engine.DefaultInterval),
		CatchUp:  cfg.Engine.CatchUp,
	}, logger)
	tickEngine.Start()

	controller := control.New(st, logger)

	// Initialize API Server
	var apiServer *api.Server
	if cfg.Server.APIEnabled {
		apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
		apiServer = api.NewServer(api.Config{
			ListenAddr:   apiAddr,
			StreamBuffer: cfg.Notifications.Buffer,
		}, st, controller, broadcaster, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Activated && sdListeners.API != nil {
			apiServer.SetListener(sdListeners.API)
		}

		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API Server: %w", err)
		}

		logger.Info().
			Str("addr", apiAddr).
			Msg("API Server started")
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsEnabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}

		logger.Info().
			Str("addr", metricsAddr).
			Msg("Metrics Server started")
	}

	logger.Info().Msg("KTimer startup complete")

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go systemd.RunWatchdog(watchdogCtx, logger)

	// Wait for signals (shutdown or save)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, saving state...")
			st.Resync()
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}
	signal.Stop(sigChan)

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdown(logger, tickEngine, broadcaster, apiServer, metricsServer, writer)

	logger.Info().Msg("KTimer stopped")
	return nil
}

// shutdown stops components in dependency order. The engine goes first so
// no tick lands after the final save, and the broadcaster closes before the
// API so open notification streams end.
func shutdown(logger zerolog.Logger, tickEngine *engine.Engine, broadcaster *notify.Broadcaster, apiServer *api.Server, metricsServer *metrics.Server, writer *persist.Writer) {
	tickEngine.Stop()
	broadcaster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Error stopping API Server")
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	if err := writer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error saving final state")
	}
}

// recordStoreGauges mirrors the size of the committed state into metrics.
func recordStoreGauges(s store.State) {
	metrics.StoredTimers.Set(float64(len(s.Timers)))
	metrics.CompletionLogs.Set(float64(len(s.Logs)))
}
