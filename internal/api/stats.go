package api

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"kasage/pkg/tracker"
)

// StatsHandler reports provider counters and process diagnostics.
type StatsHandler struct {
	tracker *tracker.Tracker
	clients func() int
	started time.Time

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates a StatsHandler. clients reports connected map clients and may be nil.
func NewStatsHandler(t *tracker.Tracker, clients func() int) *StatsHandler {
	return &StatsHandler{
		tracker: t,
		clients: clients,
		started: time.Now(),
	}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIZero     int64 `json:"api_zero"`
	APIFailures int64 `json:"api_errors"`
	Stale       int64 `json:"stale"`
	HitRate     int64 `json:"hit_rate"`
}

type Diagnostics struct {
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
	UptimeSec   int64  `json:"uptime_sec"`
	MapClients  int    `json:"map_clients"`
}

type StatsResponse struct {
	Diagnostics Diagnostics                 `json:"diagnostics"`
	Providers   map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Diagnostics: h.gatherDiagnostics(),
		Providers:   make(map[string]ProviderStatsDTO),
	}

	for provider, s := range h.tracker.Snapshot() {
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   s.CacheHits,
			CacheMisses: s.CacheMisses,
			APISuccess:  s.Success,
			APIZero:     s.ZeroResults,
			APIFailures: s.Failures,
			Stale:       s.Stale,
			HitRate:     s.HitRate(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) gatherDiagnostics() Diagnostics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	peak := h.maxMem
	h.mu.Unlock()

	d := Diagnostics{
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(peak),
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   int64(time.Since(h.started).Seconds()),
	}
	if h.clients != nil {
		d.MapClients = h.clients()
	}
	return d
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
