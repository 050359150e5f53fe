// Package notify fans out timer alerts to interested parties.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/metrics"
)

// Kind identifies what happened to a timer.
type Kind string

const (
	KindCompletion Kind = "completion"
	KindHalfway    Kind = "halfway"
)

// Notification is a user-facing alert about a timer.
type Notification struct {
	Kind      Kind      `json:"kind"`
	TimerID   string    `json:"timerId"`
	TimerName string    `json:"timerName"`
	Category  string    `json:"category"`
	At        time.Time `json:"at"`
}

// Title is the short headline shown to the user.
func (n Notification) Title() string {
	switch n.Kind {
	case KindCompletion:
		return "Timer Completed!"
	case KindHalfway:
		return "Halfway There!"
	default:
		return string(n.Kind)
	}
}

// Message is the body shown under Title.
func (n Notification) Message() string {
	switch n.Kind {
	case KindCompletion:
		return n.TimerName + " has finished!"
	case KindHalfway:
		return n.TimerName + " is at 50%"
	default:
		return n.TimerName
	}
}

// Notifier receives alerts. Notify must not block.
type Notifier interface {
	Notify(Notification)
}

// Broadcaster delivers notifications to channel subscribers. Slow
// subscribers miss notifications rather than stall the sender.
type Broadcaster struct {
	mu     sync.Mutex
	subs   []chan Notification
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a new channel with the given buffer size.
func (b *Broadcaster) Subscribe(buffer int) <-chan Notification {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (b *Broadcaster) Unsubscribe(sub <-chan Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Notify sends n to every subscriber without blocking.
func (b *Broadcaster) Notify(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			metrics.NotificationsDropped.Inc()
		}
	}
}

// Close closes all subscriber channels. Later notifications are discarded.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs each alert at info level.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

// Notify logs n.
func (l *LogNotifier) Notify(n Notification) {
	l.logger.Info().
		Str("kind", string(n.Kind)).
		Str("timer_id", n.TimerID).
		Str("timer_name", n.TimerName).
		Str("category", n.Category).
		Msg(n.Title())
}

// Multi sends every notification to each notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		notifier.Notify(n)
	}
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(Notification) {}
