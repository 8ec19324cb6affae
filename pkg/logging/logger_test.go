package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, "info", "json")
	NewComponentLogger(base, "conversation").Info("tool_dispatched", "tool", "calculator")
	out := buf.String()
	if !strings.Contains(out, `"component":"conversation"`) {
		t.Fatalf("expected component attribute, got %s", out)
	}
	if !strings.Contains(out, `"tool":"calculator"`) {
		t.Fatalf("expected tool attribute, got %s", out)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "text").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %s", buf.String())
	}
}
