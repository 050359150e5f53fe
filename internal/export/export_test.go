package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goodtune/ktimer/internal/timer"
)

func testLogs() []timer.Log {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return []timer.Log{
		{ID: "1", TimerID: "a", TimerName: "Focus", Category: "Work", CompletedAt: base, Duration: 1500},
		{ID: "2", TimerID: "b", TimerName: "Run", Category: "Exercise", CompletedAt: base.Add(time.Hour), Duration: 1800},
		{ID: "3", TimerID: "c", TimerName: "Nap", Category: "Break", CompletedAt: base.Add(2 * time.Hour), Duration: 59},
	}
}

func TestNewestFirst(t *testing.T) {
	logs := testLogs()
	got := Newest(logs)

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	if strings.Join(ids, ",") != "3,2,1" {
		t.Errorf("order = %v, want 3,2,1", ids)
	}
	if logs[0].ID != "1" {
		t.Error("Newest must not reorder its input")
	}
	if Newest(nil) == nil {
		t.Error("Newest(nil) must return an empty slice")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testLogs(), FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if !strings.Contains(buf.String(), "\n  {\n    \"id\": \"3\"") {
		t.Errorf("expected two-space indented JSON, newest first:\n%s", buf.String())
	}
	var decoded []timer.Log
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(decoded) != 3 || decoded[0].TimerName != "Nap" {
		t.Errorf("decoded = %+v", decoded)
	}

	buf.Reset()
	if err := Write(&buf, nil, FormatJSON); err != nil {
		t.Fatalf("Write empty: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty export = %q", buf.String())
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testLogs(), FormatYAML); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var decoded []map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal yaml: %v", err)
	}
	if len(decoded) != 3 || decoded[0]["timerName"] != "Nap" || decoded[2]["duration"] != 1500 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testLogs(), FormatText); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"COMPLETED", "Focus", "25 min", "30 min", "0 min"} {
		if !strings.Contains(out, want) {
			t.Errorf("text export missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Nap") > strings.Index(out, "Focus") {
		t.Error("text export must list newest first")
	}

	buf.Reset()
	_ = Write(&buf, nil, FormatText)
	if !strings.Contains(buf.String(), "No completed timers") {
		t.Errorf("empty text export = %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML, " text ": FormatText, "txt": FormatText}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("expected error for csv")
	}
}
