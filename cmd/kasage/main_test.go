package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kasage/pkg/config"
)

func TestRun(t *testing.T) {
	t.Setenv(config.EnvMapsAPIKey, "")

	dir := t.TempDir()
	tempConfig := `
server:
    address: localhost:0  # 0 lets OS choose free port
log:
    server:
        path: "` + filepath.ToSlash(filepath.Join(dir, "server.log")) + `"
        level: "debug"
    requests:
        path: "` + filepath.ToSlash(filepath.Join(dir, "requests.log")) + `"
        level: "info"
maps:
    api_key: ""
`
	cfgPath := filepath.Join(dir, "kasage.yaml")
	if err := os.WriteFile(cfgPath, []byte(tempConfig), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	// Cancel quickly to verify the startup sequence.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		t.Fatalf("run() failed: %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "kasage.yaml")
	if err := os.WriteFile(cfgPath, []byte("home:\n  location:\n    lat: 95\n    lng: 0\n"), 0o644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	err := run(context.Background(), cfgPath)
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	called := false
	h := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if !called {
		t.Error("wrapped handler was not called")
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestShutdownRequester_RepeatedCalls(t *testing.T) {
	quit := make(chan os.Signal, 1)
	shutdown := shutdownRequester(quit)

	done := make(chan struct{})
	go func() {
		shutdown()
		shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second shutdown request blocked")
	}
	if len(quit) != 1 {
		t.Errorf("Expected one queued signal, got %d", len(quit))
	}
}
