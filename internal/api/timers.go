package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/control"
	"github.com/goodtune/ktimer/internal/store"
	"github.com/goodtune/ktimer/internal/timer"
)

// timersHandler handles timer and category requests.
type timersHandler struct {
	store      *store.Store
	controller *control.Controller
	logger     zerolog.Logger
}

// createTimerRequest accepts duration as a string ("25", "90s") or a bare
// JSON number of minutes.
type createTimerRequest struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Duration     json.RawMessage `json:"duration"`
	HalfwayAlert bool            `json:"halfwayAlert"`
}

func (req createTimerRequest) toControl() (control.CreateRequest, error) {
	out := control.CreateRequest{
		Name:         req.Name,
		Category:     req.Category,
		HalfwayAlert: req.HalfwayAlert,
	}
	raw := strings.TrimSpace(string(req.Duration))
	switch {
	case raw == "" || raw == "null":
		return out, errors.New("duration is required")
	case strings.HasPrefix(raw, `"`):
		if err := json.Unmarshal(req.Duration, &out.Duration); err != nil {
			return out, errors.New("invalid duration")
		}
	default:
		out.Duration = raw
	}
	return out, nil
}

// List returns all timers, optionally filtered by ?category=.
func (h *timersHandler) List(w http.ResponseWriter, r *http.Request) {
	var timers []timer.Timer
	if category := r.URL.Query().Get("category"); category != "" {
		timers = h.store.TimersInCategory(category)
	} else {
		timers = h.store.Timers()
	}

	views := make([]control.TimerView, len(timers))
	for i, t := range timers {
		views[i] = control.NewTimerView(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timers": views,
		"count":  len(views),
	})
}

// Create adds a new timer.
func (h *timersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body createTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req, err := body.toControl()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.controller.CreateTimer(req)
	switch {
	case errors.Is(err, timer.ErrInvalidTimer), errors.Is(err, control.ErrInvalidDuration), errors.Is(err, store.ErrInvalidCategory):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrDuplicateID):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("Failed to create timer")
		writeError(w, http.StatusInternalServerError, "Failed to create timer")
		return
	}

	writeJSON(w, http.StatusCreated, control.NewTimerView(t))
}

// Get returns one timer.
func (h *timersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := h.store.Timer(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Timer not found")
		return
	}
	writeJSON(w, http.StatusOK, control.NewTimerView(t))
}

// Delete removes a timer. Its completion logs are kept.
func (h *timersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.controller.Delete(id) {
		writeError(w, http.StatusNotFound, "Timer not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Action applies start, pause or reset to one timer.
func (h *timersHandler) Action(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action, err := timer.ParseAction(vars["action"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.controller.Apply(vars["id"], action)
	if err != nil {
		h.logger.Error().Err(err).Str("timer_id", vars["id"]).Msg("Failed to apply action")
		writeError(w, http.StatusInternalServerError, "Failed to apply action")
		return
	}
	if !res.Found {
		writeError(w, http.StatusNotFound, "Timer not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timer":   control.NewTimerView(res.Timer),
		"applied": res.Applied,
	})
}

// Categories returns every category with its timers.
func (h *timersHandler) Categories(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	includeEmpty := r.URL.Query().Get("non_empty") != "true"
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": control.GroupByCategory(snap.Categories, snap.Timers, includeEmpty),
	})
}

// AddCategory adds a category to the set.
func (h *timersHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	added, err := h.controller.AddCategory(body.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]interface{}{
		"name":       strings.TrimSpace(body.Name),
		"added":      added,
		"categories": h.store.Categories(),
	})
}

// Bulk applies an action to every timer in a category.
func (h *timersHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action, err := timer.ParseAction(vars["action"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.controller.ApplyCategory(vars["name"], action)
	if err != nil {
		h.logger.Error().Err(err).Str("category", vars["name"]).Msg("Failed to apply bulk action")
		writeError(w, http.StatusInternalServerError, "Failed to apply bulk action")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
