package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("cache miss", "l", 1.8e-7)

	output := buf.String()
	if !strings.Contains(output, "cache miss") {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Fatalf("expected level INFO in output, got: %s", output)
	}
}

func TestTextLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelWarn)
	log.Info("should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output at warn level, got: %s", buf.String())
	}

	log.With("device", "m1").Warn("clamped")
	if !strings.Contains(buf.String(), "device=m1") {
		t.Fatalf("expected attribute in output, got: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped")
	log.WithGroup("g").Warn("dropped")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Text(&buf, slog.LevelDebug)
	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Debug("from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Fatalf("expected logger from context, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil for empty context")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
