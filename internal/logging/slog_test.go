package logging

import (
	"log/slog"
	"testing"
)

func TestSetLevelFromStringRecognizesAllLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for input, want := range cases {
		SetLevelFromString(input)
		if logLevel.Level() != want {
			t.Fatalf("%q: expected level %v, got %v", input, want, logLevel.Level())
		}
	}
}

func TestSetLevelFromStringIgnoresUnknownValue(t *testing.T) {
	SetLevel(slog.LevelWarn)
	SetLevelFromString("not_a_level")
	if logLevel.Level() != slog.LevelWarn {
		t.Fatalf("expected unknown level string to leave the level unchanged, got %v", logLevel.Level())
	}
}

func TestOpReturnsUsableLogger(t *testing.T) {
	if Op() == nil {
		t.Fatal("expected Op() to return a non-nil logger")
	}
}
