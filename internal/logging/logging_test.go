package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_AutoUsesJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	New("info", "auto", &buf).Info("hello", "id", 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "hello" {
		t.Fatalf("expected msg hello, got %v", rec["msg"])
	}
	ts, ok := rec["time"].(string)
	if !ok {
		t.Fatalf("expected string time, got %T", rec["time"])
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t.Fatalf("expected RFC3339 time, got %q", ts)
	}
	if parsed.Location() != time.UTC {
		t.Fatalf("expected UTC time, got %q", ts)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New("info", "text", &buf).Info("hello", "id", 7)

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "id=7") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warning", "text", &buf)
	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("discard logger should not enable error")
	}
}
