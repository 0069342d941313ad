// Package probe runs the startup checks and decides whether the server may start.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// CheckFunc returns nil when the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // a failure blocks startup
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool { return r.Error == nil }

// Run executes the probes concurrently, each bounded by DefaultTimeout,
// and returns the results in input order.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
			defer cancel()

			start := time.Now()
			err := safeCheck(pctx, p)
			results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
		}(i, p)
	}
	wg.Wait()
	return results
}

func safeCheck(ctx context.Context, p Probe) (err error) {
	if p.Check == nil {
		return fmt.Errorf("no check defined")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
		}
	}()
	return p.Check(ctx)
}

// AnalyzeResults logs a summary line per probe and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var critical []error

	slog.Info("Startup checks", "count", len(results))
	for _, r := range results {
		line := fmt.Sprintf("%-24s %v", r.Probe.Name, r.Duration.Round(time.Millisecond))
		switch {
		case r.Passed():
			slog.Info("PASS " + line)
		case r.Probe.Critical:
			slog.Error("FAIL "+line, "error", r.Error)
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn("WARN "+line, "error", r.Error)
		}
	}
	return errors.Join(critical...)
}
