package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSONLoggerToTagsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLoggerTo(&buf, "search-api", "warn")

	logger.Info("stage_fallback", "stage", "rewrite")
	if buf.Len() != 0 {
		t.Fatalf("expected info record to be filtered, got %s", buf.String())
	}

	logger.Warn("search_backend_degraded", "error", "timeout")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["service"] != "search-api" || record["msg"] != "search_backend_degraded" {
		t.Fatalf("unexpected record %v", record)
	}
}
