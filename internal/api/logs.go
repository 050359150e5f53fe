package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/export"
	"github.com/goodtune/ktimer/internal/store"
)

// logsHandler serves the completion history.
type logsHandler struct {
	store  *store.Store
	logger zerolog.Logger
}

// List returns completion logs, newest first. ?category= filters and
// ?limit= caps the result.
func (h *logsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	logs := export.Newest(h.store.Logs())

	if category := query.Get("category"); category != "" {
		filtered := logs[:0]
		for _, l := range logs {
			if l.Category == category {
				filtered = append(filtered, l)
			}
		}
		logs = filtered
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(logs) {
			logs = logs[:limit]
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// Export renders the full history in the requested ?format=.
func (h *logsHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, h.store.Logs(), format); err != nil {
		h.logger.Error().Err(err).Msg("Failed to export logs")
		writeError(w, http.StatusInternalServerError, "Failed to export logs")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="timer-history.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
