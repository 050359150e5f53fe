package persist

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/metrics"
	"github.com/goodtune/ktimer/internal/store"
)

// Writer defaults.
const (
	DefaultRetryInterval = time.Second
	DefaultSaveTimeout   = 5 * time.Second
)

// WriterConfig holds writer settings.
type WriterConfig struct {
	// RetryInterval is how often a failed save is retried.
	RetryInterval time.Duration
	// SaveTimeout bounds a single save.
	SaveTimeout time.Duration
}

// Writer is a store observer that saves snapshots in the background.
// Snapshots arriving while a save is in flight are coalesced; only the
// latest is written.
type Writer struct {
	gateway *Gateway
	retry   time.Duration
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	pending *store.State

	saveMu sync.Mutex

	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

var _ store.Observer = (*Writer)(nil)

// NewWriter creates a writer around gateway.
func NewWriter(gateway *Gateway, config WriterConfig, logger zerolog.Logger) *Writer {
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = DefaultSaveTimeout
	}
	return &Writer{
		gateway: gateway,
		retry:   config.RetryInterval,
		timeout: config.SaveTimeout,
		logger:  logger.With().Str("component", "persist-writer").Logger(),
		wake:    make(chan struct{}, 1),
	}
}

// StateChanged records s as the next snapshot to save. It never blocks.
func (w *Writer) StateChanged(s store.State) {
	w.mu.Lock()
	w.pending = &s
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Pending reports whether a snapshot is waiting to be saved.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

// Start launches the background save loop.
func (w *Writer) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run()
	w.logger.Info().Dur("retry_interval", w.retry).Msg("State writer started")
}

// Stop ends the save loop and makes a final attempt to save.
func (w *Writer) Stop() error {
	w.mu.Lock()
	started := w.started
	w.started = false
	w.mu.Unlock()

	if started {
		close(w.stopCh)
		<-w.doneCh
	}

	err := w.Flush(context.Background())
	if err != nil {
		w.logger.Error().Err(err).Msg("Final state save failed")
	} else {
		w.logger.Info().Msg("State writer stopped")
	}
	return err
}

func (w *Writer) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.retry)
	defer ticker.Stop()

	for {
		select {
		case <-w.wake:
			_ = w.Flush(context.Background())
		case <-ticker.C:
			if w.Pending() {
				_ = w.Flush(context.Background())
			}
		case <-w.stopCh:
			return
		}
	}
}

// Flush saves the pending snapshot, if any, before returning. On failure
// the snapshot stays pending unless a newer one has arrived meanwhile.
func (w *Writer) Flush(ctx context.Context) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	w.mu.Lock()
	state := w.pending
	w.pending = nil
	w.mu.Unlock()
	if state == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.gateway.Save(ctx, *state); err != nil {
		metrics.PersistErrors.Inc()
		w.logger.Error().Err(err).Msg("Failed to save state, will retry")

		w.mu.Lock()
		if w.pending == nil {
			w.pending = state
		}
		w.mu.Unlock()
		return err
	}

	metrics.PersistWrites.Inc()
	w.logger.Debug().
		Int("timers", len(state.Timers)).
		Int("logs", len(state.Logs)).
		Msg("State saved")
	return nil
}
