// Package engine drives the once-per-second countdown of running timers.
package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/metrics"
	"github.com/goodtune/ktimer/internal/notify"
	"github.com/goodtune/ktimer/internal/store"
	"github.com/goodtune/ktimer/internal/timer"
)

// DefaultInterval is how often the engine polls the clock.
const DefaultInterval = time.Second

// StepSize is the countdown applied by one tick step. Timers count whole
// seconds whatever the polling interval.
const StepSize = time.Second

// Config holds engine settings.
type Config struct {
	// Interval between clock polls. A poll applies a step only once a
	// whole StepSize has elapsed since the last applied step.
	Interval time.Duration

	// CatchUp applies one step per whole second elapsed since the last
	// applied step, so seconds lost to a stalled process are not lost time.
	// Without it a poll applies at most one step.
	CatchUp bool

	// Clock defaults to RealClock.
	Clock Clock
}

// Result summarizes one call to Tick or Advance.
type Result struct {
	Steps         int
	Notifications []notify.Notification
	Running       int
}

// Engine applies tick steps to the store.
type Engine struct {
	store    *store.Store
	notifier notify.Notifier
	clock    Clock
	interval time.Duration
	catchUp  bool
	logger   zerolog.Logger

	mu       sync.Mutex
	lastTick time.Time
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates an engine. A nil notifier discards alerts.
func New(st *store.Store, notifier notify.Notifier, config Config, logger zerolog.Logger) *Engine {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}

	return &Engine{
		store:    st,
		notifier: notifier,
		clock:    config.Clock,
		interval: config.Interval,
		catchUp:  config.CatchUp,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Start begins ticking in the background.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.lastTick = e.clock.Now()
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	go e.run(stopCh, doneCh)

	e.logger.Info().
		Dur("interval", e.interval).
		Bool("catch_up", e.catchUp).
		Msg("Tick engine started")
}

// Stop halts ticking and waits for an in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	doneCh := e.doneCh
	e.mu.Unlock()

	<-doneCh
	e.logger.Info().Msg("Tick engine stopped")
}

func (e *Engine) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick()
		case <-stopCh:
			return
		}
	}
}

// Tick applies the steps due at the current clock time. The first Tick of
// an engine that was never started applies a single step.
func (e *Engine) Tick() Result {
	now := e.clock.Now()

	e.mu.Lock()
	steps := 1
	if !e.lastTick.IsZero() {
		steps = int(now.Sub(e.lastTick) / StepSize)
		if steps > 1 && !e.catchUp {
			steps = 1
		}
	}
	switch {
	case steps < 1:
	case e.lastTick.IsZero():
		e.lastTick = now
	default:
		// keep the phase of the step schedule unless a whole step behind
		next := e.lastTick.Add(time.Duration(steps) * StepSize)
		if now.Sub(next) >= StepSize {
			next = now
		}
		e.lastTick = next
	}
	e.mu.Unlock()

	if steps < 1 {
		return Result{}
	}
	if steps > 1 {
		e.logger.Warn().
			Int("steps", steps).
			Msg("Catching up on missed ticks")
	}
	return e.advance(steps, now)
}

// Advance applies n tick steps ending at the current clock time.
func (e *Engine) Advance(n int) Result {
	return e.advance(n, e.clock.Now())
}

func (e *Engine) advance(steps int, now time.Time) Result {
	start := time.Now()
	result := Result{}
	if steps < 1 {
		return result
	}

	err := e.store.Update(func(tx *store.Tx) error {
		result = Result{}
		for i := 0; i < steps; i++ {
			at := now.Add(-time.Duration(steps-1-i) * StepSize)
			running, err := e.step(tx, at, &result)
			if err != nil {
				return err
			}
			result.Steps++
			if running == 0 {
				break
			}
		}
		return nil
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("Tick rolled back")
		return Result{}
	}

	for _, t := range e.store.Timers() {
		if t.Status == timer.StatusRunning {
			result.Running++
		}
	}

	metrics.TicksTotal.Add(float64(result.Steps))
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	metrics.RunningTimers.Set(float64(result.Running))

	for _, n := range result.Notifications {
		switch n.Kind {
		case notify.KindCompletion:
			metrics.TimersCompleted.WithLabelValues(n.Category).Inc()
		case notify.KindHalfway:
			metrics.HalfwayAlerts.WithLabelValues(n.Category).Inc()
		}
		e.notifier.Notify(n)
	}
	return result
}

// step advances every running timer by one second within tx and reports
// how many are still running afterwards.
func (e *Engine) step(tx *store.Tx, now time.Time, result *Result) (int, error) {
	running := 0
	for _, t := range tx.Timers() {
		next, ev := t.Tick(now)
		if next.Status == t.Status && next.RemainingTime == t.RemainingTime {
			continue
		}
		if _, err := tx.Commit(next); err != nil {
			return 0, err
		}

		switch ev {
		case timer.EventCompleted:
			tx.AppendLog(timer.NewLog(t, *next.CompletedAt))
			result.Notifications = append(result.Notifications, notification(notify.KindCompletion, next, now))
		case timer.EventHalfway:
			result.Notifications = append(result.Notifications, notification(notify.KindHalfway, next, now))
			running++
		default:
			running++
			continue
		}
		e.logger.Info().
			Str("event", ev.String()).
			Str("timer_id", next.ID).
			Str("timer_name", next.Name).
			Str("category", next.Category).
			Int("duration", next.Duration).
			Int("remaining", next.RemainingTime).
			Msg("Timer event")
	}
	return running, nil
}

func notification(kind notify.Kind, t timer.Timer, at time.Time) notify.Notification {
	return notify.Notification{
		Kind:      kind,
		TimerID:   t.ID,
		TimerName: t.Name,
		Category:  t.Category,
		At:        at.UTC(),
	}
}
