package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
	if logger == Default() {
		t.Error("Default() returned the same instance twice")
	}
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).Component("bookings")
	logger.Info("booked", "appointment_id", "a-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["component"] != "bookings" {
		t.Fatalf("expected component field, got %v", record["component"])
	}
	if record["appointment_id"] != "a-1" {
		t.Fatalf("expected appointment_id field, got %v", record["appointment_id"])
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	child := logger.With("k", "v")
	if child == nil || child.Logger == nil {
		t.Fatal("expected usable logger from nil receiver")
	}
}
