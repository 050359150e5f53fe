package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/notify"
)

// keepAliveInterval is how often an idle stream gets a comment line.
const keepAliveInterval = 30 * time.Second

// eventsHandler streams notifications as server-sent events.
type eventsHandler struct {
	broadcaster *notify.Broadcaster
	buffer      int
	logger      zerolog.Logger
}

// Stream writes each notification as an SSE event named after its kind.
func (h *eventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// streams outlive any server write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.broadcaster.Subscribe(h.buffer)
	defer h.broadcaster.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Error().Err(err).Msg("Streaming not supported")
		return
	}

	h.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Notification stream opened")
	defer h.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Notification stream closed")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		case n, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(struct {
				notify.Notification
				Title   string `json:"title"`
				Message string `json:"message"`
			}{n, n.Title(), n.Message()})
			if err != nil {
				h.logger.Error().Err(err).Msg("Failed to encode notification")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
