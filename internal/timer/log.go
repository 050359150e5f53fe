package timer

import (
	"time"

	"github.com/google/uuid"
)

// Log records one timer completion. Name and category are copied so the
// history survives deletion of the timer.
type Log struct {
	ID          string    `json:"id"`
	TimerID     string    `json:"timerId"`
	TimerName   string    `json:"timerName"`
	Category    string    `json:"category"`
	CompletedAt time.Time `json:"completedAt"`
	Duration    int       `json:"duration"`
}

// NewLog builds the completion record for t.
func NewLog(t Timer, completedAt time.Time) Log {
	return Log{
		ID:          uuid.NewString(),
		TimerID:     t.ID,
		TimerName:   t.Name,
		Category:    t.Category,
		CompletedAt: completedAt.UTC(),
		Duration:    t.Duration,
	}
}
