package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTerminalHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	ts := time.Date(2026, 1, 15, 10, 30, 45, 123000000, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "job finished", 0)
	r.AddAttrs(slog.Int64("vectorizer_id", 3))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"10:30:45.123", "INF", "job finished", "vectorizer_id=", "3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestTerminalHandler_Levels(t *testing.T) {
	tests := []struct {
		level    slog.Level
		expected string
	}{
		{slog.LevelDebug, "DBG"},
		{slog.LevelInfo, "INF"},
		{slog.LevelWarn, "WRN"},
		{slog.LevelError, "ERR"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

			r := slog.NewRecord(time.Now(), tt.level, "msg", 0)
			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error: %v", err)
			}

			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("expected %s in output, got: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestTerminalHandler_ComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, nil)).With("component", "scheduler")

	logger.Info("tick", "due", 2)

	output := buf.String()
	if !strings.Contains(output, "[scheduler]") {
		t.Errorf("expected component prefix, got: %s", output)
	}
	if strings.Contains(output, "component=") {
		t.Errorf("component should not be rendered as an attribute, got: %s", output)
	}
	if strings.Index(output, "[scheduler]") > strings.Index(output, "tick") {
		t.Errorf("component should precede the message, got: %s", output)
	}
}

func TestTerminalHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn should be emitted")
	}
}

func TestTerminalHandler_GroupsAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, nil)).WithGroup("index")

	logger.Info("built", "target", "public.docs store")

	output := buf.String()
	if !strings.Contains(output, "index.target=") {
		t.Errorf("expected grouped key, got: %s", output)
	}
	if !strings.Contains(output, `"public.docs store"`) {
		t.Errorf("expected quoted value, got: %s", output)
	}
}
