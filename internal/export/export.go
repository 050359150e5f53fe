// Package export renders the completion history for sharing.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goodtune/ktimer/internal/timer"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat accepts json, yaml/yml and text/txt, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/json"
	}
}

// Newest returns a copy of logs ordered most recent completion first.
// Logs with equal timestamps keep reverse append order.
func Newest(logs []timer.Log) []timer.Log {
	out := slices.Clone(logs)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b timer.Log) int {
		return b.CompletedAt.Compare(a.CompletedAt)
	})
	if out == nil {
		out = []timer.Log{}
	}
	return out
}

// yamlLog mirrors timer.Log with yaml keys matching the JSON field names.
type yamlLog struct {
	ID          string    `yaml:"id"`
	TimerID     string    `yaml:"timerId"`
	TimerName   string    `yaml:"timerName"`
	Category    string    `yaml:"category"`
	CompletedAt time.Time `yaml:"completedAt"`
	Duration    int       `yaml:"duration"`
}

// Write renders logs newest first in format f.
func Write(w io.Writer, logs []timer.Log, f Format) error {
	ordered := Newest(logs)

	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ordered); err != nil {
			return fmt.Errorf("encode json export: %w", err)
		}
		return nil

	case FormatYAML:
		out := make([]yamlLog, len(ordered))
		for i, l := range ordered {
			out[i] = yamlLog(l)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode yaml export: %w", err)
		}
		return enc.Close()

	case FormatText:
		return writeText(w, ordered)

	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

func writeText(w io.Writer, logs []timer.Log) error {
	if len(logs) == 0 {
		_, err := fmt.Fprintln(w, "No completed timers yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "COMPLETED\tTIMER\tCATEGORY\tDURATION")
	for _, l := range logs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			FormatCompletedAt(l.CompletedAt), l.TimerName, l.Category, FormatMinutes(l.Duration))
	}
	return tw.Flush()
}

// FormatMinutes renders a duration in seconds as whole minutes, "25 min".
func FormatMinutes(seconds int) string {
	return fmt.Sprintf("%d min", seconds/60)
}

// FormatCompletedAt renders a completion time in local time.
func FormatCompletedAt(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
