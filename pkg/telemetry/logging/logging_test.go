package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestParseLevel covers level name parsing.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.name, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

// TestNew_JSONFormat verifies structured output and level filtering.
func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("filtered out")
	logger.Warn("kept", "component", "test")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not one JSON line: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "kept" || entry["component"] != "test" {
		t.Errorf("entry = %v", entry)
	}
}

// TestNew_UnknownFormat verifies format validation.
func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New(&Config{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("New() accepted unknown format")
	}
}
