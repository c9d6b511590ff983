package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, "WARN", "JSON")

	logger.Info("hidden")
	logger.Warn("shown", "queue", "error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["queue"] != "error" || rec["level"] != "WARN" {
		t.Errorf("record = %v", rec)
	}
}

func TestSetup_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(&buf, "debug", "text")

	logger.Debug("peeked", "count", 3)

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "msg=peeked") || !strings.Contains(out, "count=3") {
		t.Errorf("text output = %q", out)
	}
}
