package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logLevel string
	}{
		{name: "Valid debug level", level: "debug", logLevel: "debug"},
		{name: "Valid info level", level: "info", logLevel: "info"},
		{name: "Valid warn level", level: "warn", logLevel: "warning"},
		{name: "Valid error level", level: "error", logLevel: "error"},
		{name: "Invalid level defaults to info", level: "invalid", logLevel: "info"},
		{name: "Empty level defaults to info", level: "", logLevel: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithOptions(Options{Level: tt.level}, &buf)

			switch tt.logLevel {
			case "debug":
				log.Debug("test message")
			case "warning":
				log.Warn("test message")
			case "error":
				log.Error("test message")
			default:
				log.Info("test message")
			}

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("Log output is not valid JSON: %v", err)
			}

			if entry["level"] != tt.logLevel {
				t.Errorf("Expected level %q, got %q", tt.logLevel, entry["level"])
			}
			if entry["message"] != "test message" {
				t.Errorf("Expected message field, got %v", entry["message"])
			}
			if _, ok := entry["timestamp"]; !ok {
				t.Error("Expected timestamp field")
			}
		})
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "info"}, &buf)

	log.WithField("module", "webhook").
		WithSession("session-1").
		Info("event processed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v", err)
	}
	if entry["module"] != "webhook" {
		t.Errorf("Expected module field, got %v", entry["module"])
	}
	if entry["session_key"] != "session-1" {
		t.Errorf("Expected session_key field, got %v", entry["session_key"])
	}
}

func TestLogger_DebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: "info"}, &buf)

	log.Debug("should not appear")
	if buf.Len() != 0 {
		t.Errorf("Debug log should be suppressed at info level, got %q", buf.String())
	}
}

type captureHandler struct {
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func TestMultiHandler_FansOut(t *testing.T) {
	a := &captureHandler{}
	b := &captureHandler{}
	log := slog.New(NewMultiHandler(a, nil, b))

	log.Info("hello")

	if len(a.records) != 1 || len(b.records) != 1 {
		t.Errorf("Expected both handlers to receive the record, got %d and %d",
			len(a.records), len(b.records))
	}
}
