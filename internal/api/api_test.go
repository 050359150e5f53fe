package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/ktimer/internal/control"
	"github.com/goodtune/ktimer/internal/notify"
	"github.com/goodtune/ktimer/internal/store"
	"github.com/goodtune/ktimer/internal/timer"
)

type testEnv struct {
	store       *store.Store
	controller  *control.Controller
	broadcaster *notify.Broadcaster
	handler     http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.New(zerolog.Nop())
	c := control.New(st, zerolog.Nop())
	b := notify.NewBroadcaster()
	t.Cleanup(b.Close)
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"}, st, c, b, zerolog.Nop())
	return &testEnv{store: st, controller: c, broadcaster: b, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreateAndGetTimer(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/timers", `{"name":"Focus","category":"Work","duration":2,"halfwayAlert":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[control.TimerView](t, rec)
	if created.Duration != 120 || created.Clock != "2:00" || !created.HalfwayAlert || created.Status != timer.StatusIdle {
		t.Errorf("created = %+v", created)
	}

	rec = env.do(t, "GET", "/api/timers/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = env.do(t, "POST", "/api/timers", `{"name":"Run","category":"Exercise","duration":"90s"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create with string duration = %d: %s", rec.Code, rec.Body.String())
	}

	list := decode[struct {
		Timers []control.TimerView `json:"timers"`
		Count  int                 `json:"count"`
	}](t, env.do(t, "GET", "/api/timers?category=Work", ""))
	if list.Count != 1 || list.Timers[0].ID != created.ID {
		t.Errorf("filtered list = %+v", list)
	}
}

func TestCreateTimerValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"name":`},
		{"missing duration", `{"name":"X","category":"Work"}`},
		{"blank name", `{"name":" ","category":"Work","duration":5}`},
		{"zero duration", `{"name":"X","category":"Work","duration":0}`},
		{"bad duration", `{"name":"X","category":"Work","duration":"later"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/timers", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("error body = %+v", resp)
			}
		})
	}
	if len(env.store.Timers()) != 0 {
		t.Error("invalid requests created timers")
	}
}

func TestTimerActions(t *testing.T) {
	env := newTestEnv(t)
	tm, err := env.controller.CreateTimer(control.CreateRequest{Name: "Focus", Category: "Work", Duration: "1"})
	if err != nil {
		t.Fatalf("CreateTimer: %v", err)
	}

	rec := env.do(t, "POST", "/api/timers/"+tm.ID+"/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	res := decode[struct {
		Timer   control.TimerView `json:"timer"`
		Applied bool              `json:"applied"`
	}](t, rec)
	if !res.Applied || res.Timer.Status != timer.StatusRunning {
		t.Errorf("start = %+v", res)
	}

	rec = env.do(t, "POST", "/api/timers/"+tm.ID+"/start", "")
	if rec.Code != http.StatusOK || decode[map[string]any](t, rec)["applied"] != false {
		t.Errorf("repeat start = %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, "POST", "/api/timers/"+tm.ID+"/explode", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/timers/nope/pause", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown timer status = %d", rec.Code)
	}

	if rec := env.do(t, "DELETE", "/api/timers/"+tm.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := env.do(t, "DELETE", "/api/timers/"+tm.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", rec.Code)
	}
}

func TestCategoriesAndBulk(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"A", "B"} {
		tm, err := env.controller.CreateTimer(control.CreateRequest{Name: name, Category: "Work", Duration: "5"})
		if err != nil {
			t.Fatalf("CreateTimer: %v", err)
		}
		if _, err := env.controller.Apply(tm.ID, timer.ActionStart); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	rec := env.do(t, "POST", "/api/categories/Work/pause", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk status = %d", rec.Code)
	}
	bulk := decode[control.BulkResult](t, rec)
	if bulk.Matched != 2 || bulk.Applied != 2 {
		t.Errorf("bulk = %+v", bulk)
	}
	for _, tm := range env.store.TimersInCategory("Work") {
		if tm.Status != timer.StatusPaused {
			t.Errorf("%s status = %s", tm.Name, tm.Status)
		}
	}

	rec = env.do(t, "POST", "/api/categories/Nobody/start", "")
	if rec.Code != http.StatusOK || decode[control.BulkResult](t, rec).Matched != 0 {
		t.Errorf("empty bulk = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/categories", `{"name":"Music"}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("add category status = %d", rec.Code)
	}
	rec = env.do(t, "POST", "/api/categories", `{"name":"Music"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("repeat add category status = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/categories", `{"name":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank category status = %d", rec.Code)
	}

	groups := decode[struct {
		Categories []control.Group `json:"categories"`
	}](t, env.do(t, "GET", "/api/categories", ""))
	if len(groups.Categories) != 5 || groups.Categories[0].Category != "Work" || len(groups.Categories[0].Timers) != 2 {
		t.Errorf("groups = %+v", groups.Categories)
	}
}

func TestLogsAndExport(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	env.store.AppendLog(timer.Log{ID: "1", TimerID: "a", TimerName: "Old", Category: "Work", CompletedAt: base, Duration: 60})
	env.store.AppendLog(timer.Log{ID: "2", TimerID: "b", TimerName: "New", Category: "Study", CompletedAt: base.Add(time.Hour), Duration: 120})

	list := decode[struct {
		Logs  []timer.Log `json:"logs"`
		Count int         `json:"count"`
	}](t, env.do(t, "GET", "/api/logs", ""))
	if list.Count != 2 || list.Logs[0].ID != "2" {
		t.Errorf("logs = %+v", list)
	}

	limited := decode[struct {
		Logs []timer.Log `json:"logs"`
	}](t, env.do(t, "GET", "/api/logs?category=Work&limit=5", ""))
	if len(limited.Logs) != 1 || limited.Logs[0].ID != "1" {
		t.Errorf("filtered logs = %+v", limited.Logs)
	}

	rec := env.do(t, "GET", "/api/logs/export?format=yaml", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/yaml" {
		t.Fatalf("yaml export = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "timerName: New") {
		t.Errorf("yaml export body = %s", rec.Body.String())
	}

	if rec := env.do(t, "GET", "/api/logs/export?format=csv", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("csv export status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/health", "")
	if rec.Code != http.StatusOK || decode[map[string]any](t, rec)["status"] != "ok" {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestNotificationStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	// closing the broadcaster ends the stream before the server waits on it
	defer env.broadcaster.Close()

	resp, err := http.Get(srv.URL + "/api/notifications")
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	env.broadcaster.Notify(notify.Notification{
		Kind:      notify.KindHalfway,
		TimerID:   "t1",
		TimerName: "Focus",
		Category:  "Work",
		At:        time.Now(),
	})

	reader := bufio.NewReader(resp.Body)
	lines := make(chan string, 8)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimSpace(line)
		}
	}()

	var event, data string
	timeout := time.After(2 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed early")
			}
			if strings.HasPrefix(line, "event: ") {
				event = strings.TrimPrefix(line, "event: ")
			}
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
			}
		case <-timeout:
			t.Fatal("no event received")
		}
	}

	if event != "halfway" {
		t.Errorf("event = %q", event)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["timerName"] != "Focus" || payload["title"] != "Halfway There!" {
		t.Errorf("payload = %v", payload)
	}
}
