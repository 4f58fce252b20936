package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	l, err := NewLogger(LoggerConfig{
		Level:         "info",
		OutputFile:    path,
		MaxFileSizeMB: 1,
		EnableFile:    true,
		EnableJSON:    true,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	l.WithGuild("g1").WithTrack("Song", "https://youtu.be/abc").Info("now playing")
	l.Debug("filtered out")
	l.Error("resolve failed", errors.New("boom"), Fields{"backend": "piped"})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)

	for _, want := range []string{`"guild_id":"g1"`, `"track_title":"Song"`, `"message":"now playing"`, `"error":"boom"`, `"backend":"piped"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
	if strings.Contains(out, "filtered out") {
		t.Error("debug entry should be filtered at info level")
	}
}

func TestDefaultLoggerIsSafe(t *testing.T) {
	Error("no default configured", errors.New("boom"))
	SetDefault(nil)
	if defaultLogger == nil {
		t.Fatal("default logger should never be nil")
	}
}
