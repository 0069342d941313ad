package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kasage/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	// A previous run's log must be rotated away.
	if err := os.WriteFile(serverLog, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
	}

	prev := slog.Default()
	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer func() {
		cleanup()
		slog.SetDefault(prev)
	}()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	if old, err := os.ReadFile(serverLog + ".old"); err != nil || !strings.Contains(string(old), "previous run") {
		t.Errorf("expected rotated .old file, err=%v", err)
	}

	slog.Info("Route ready", "attraction", 3)
	if got := Capture.LastLine(); !strings.Contains(got, "Route ready") {
		t.Errorf("capture last line = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLastLineWriter(t *testing.T) {
	w := &LastLineWriter{}
	_, _ = w.Write([]byte("first\n"))
	_, _ = w.Write([]byte("second\n"))
	if w.LastLine() != "second" {
		t.Errorf("LastLine() = %q", w.LastLine())
	}
}
