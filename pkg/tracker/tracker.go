package tracker

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Outcome classifies one call against a provider.
type Outcome int

const (
	CacheHit Outcome = iota
	CacheMiss
	Success
	Failure
	ZeroResult
	Stale // response arrived after the view moved on
	outcomeCount
)

// Tracker counts outcomes per provider (e.g. "google-maps", "geolocation").
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*[outcomeCount]int64
}

// Stats is a point-in-time copy of one provider's counters.
type Stats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	Success     int64 `json:"success"`
	Failures    int64 `json:"failures"`
	ZeroResults int64 `json:"zero_results"`
	Stale       int64 `json:"stale"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{stats: make(map[string]*[outcomeCount]int64)}
}

func (t *Tracker) counters(provider string) *[outcomeCount]int64 {
	t.mu.RLock()
	c, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.stats[provider]; ok {
		return c
	}
	c = new([outcomeCount]int64)
	t.stats[provider] = c
	return c
}

// Track records one outcome. A nil Tracker is a no-op.
func (t *Tracker) Track(provider string, o Outcome) {
	if t == nil || o < 0 || o >= outcomeCount {
		return
	}
	atomic.AddInt64(&t.counters(provider)[o], 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Stats, len(t.stats))
	for name, c := range t.stats {
		out[name] = Stats{
			CacheHits:   atomic.LoadInt64(&c[CacheHit]),
			CacheMisses: atomic.LoadInt64(&c[CacheMiss]),
			Success:     atomic.LoadInt64(&c[Success]),
			Failures:    atomic.LoadInt64(&c[Failure]),
			ZeroResults: atomic.LoadInt64(&c[ZeroResult]),
			Stale:       atomic.LoadInt64(&c[Stale]),
		}
	}
	return out
}

// Providers returns the tracked provider names, sorted.
func (t *Tracker) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.stats))
	for name := range t.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HitRate returns cache hits as a percentage of cache lookups.
func (s Stats) HitRate() int64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return s.CacheHits * 100 / total
}
