package api

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"kasage/internal/ui"
	"kasage/pkg/version"
)

// NewServer creates and configures the HTTP server.
// ws serves the map bridge; shutdown is called after a POST /api/shutdown has been answered.
func NewServer(addr string, cfg *ConfigHandler, attr *AttractionHandler, scr *ScreenHandler, book *BookingHandler, stats *StatsHandler, ws http.Handler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Client config and catalog
	mux.HandleFunc("GET /api/config", cfg.HandleConfig)
	mux.HandleFunc("GET /api/attractions", attr.HandleList)
	mux.HandleFunc("GET /api/categories", attr.HandleCategories)

	// 3. Map screen
	mux.HandleFunc("GET /api/screen", scr.HandleState)
	mux.HandleFunc("POST /api/screen/select/{id}", scr.HandleSelect)
	mux.HandleFunc("POST /api/screen/recenter", scr.HandleRecenter)
	mux.HandleFunc("POST /api/screen/filter", scr.HandleFilter)
	mux.HandleFunc("POST /api/screen/locate", scr.HandleLocate)
	mux.HandleFunc("POST /api/screen/navigate/{id}", scr.HandleNavigate)

	// 4. Booking screen
	mux.HandleFunc("GET /api/booking", book.HandlePage)
	mux.HandleFunc("POST /api/booking/book", book.HandleBook)
	mux.HandleFunc("POST /api/booking/call", book.HandleCall)

	// 5. Diagnostics
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 6. Map bridge
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}

	// 7. Shutdown
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	// 8. Frontend (SPA): "/" is the map, "/booking" the booking screen
	distFS, err := fs.Sub(ui.DistFS, "dist")
	if err != nil {
		panic(fmt.Sprintf("Failed to subtree dist from embedded assets: %v", err))
	}
	mux.Handle("/", http.FileServer(&spaFileSystem{root: http.FS(distFS)}))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version})
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
