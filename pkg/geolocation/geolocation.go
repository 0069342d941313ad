// Package geolocation requests one-shot device positions with a timeout and an accuracy gate.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasage/pkg/config"
	"kasage/pkg/model"
)

var (
	ErrDenied      = errors.New("location permission denied")
	ErrUnavailable = errors.New("location unavailable")
	ErrTimeout     = errors.New("location request timed out")
	ErrLowAccuracy = errors.New("location fix too inaccurate")
)

// Fix is a single position reading.
type Fix struct {
	Position       model.LatLng `json:"position"`
	AccuracyMeters float64      `json:"accuracy_meters"`
}

// Options mirror the browser geolocation options plus the accuracy gate.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCacheAge  time.Duration
	MaxAccuracy  float64
}

// DefaultOptions returns a high-accuracy, uncached request with a 10 s timeout and a 500 m gate.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      10 * time.Second,
		MaxAccuracy:  500,
	}
}

// OptionsFrom converts the geolocation config section.
func OptionsFrom(cfg config.GeolocationConfig) Options {
	o := Options{
		HighAccuracy: cfg.HighAccuracy,
		Timeout:      cfg.Timeout.Std(),
		MaxCacheAge:  cfg.MaxCacheAge.Std(),
		MaxAccuracy:  float64(cfg.MaxAccuracy),
	}
	def := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.MaxAccuracy <= 0 {
		o.MaxAccuracy = def.MaxAccuracy
	}
	return o
}

// Source delivers one position reading. Implementations return ErrDenied or
// ErrUnavailable for the matching device errors.
type Source interface {
	CurrentPosition(ctx context.Context, opts Options) (Fix, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, opts Options) (Fix, error)

func (f SourceFunc) CurrentPosition(ctx context.Context, opts Options) (Fix, error) {
	return f(ctx, opts)
}

// AccuracyError is returned with a fix whose accuracy radius exceeds the gate.
type AccuracyError struct {
	Accuracy float64
	Limit    float64
}

func (e *AccuracyError) Error() string {
	return fmt.Sprintf("location accuracy %.0f m exceeds %.0f m", e.Accuracy, e.Limit)
}

func (e *AccuracyError) Is(target error) bool { return target == ErrLowAccuracy }

// Locate requests a single fix. The call resolves to ErrTimeout once
// opts.Timeout elapses even if the source never answers. A fix that fails the
// accuracy gate is returned together with an *AccuracyError.
func Locate(ctx context.Context, src Source, opts Options) (Fix, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxAccuracy <= 0 {
		opts.MaxAccuracy = DefaultOptions().MaxAccuracy
	}

	lctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type result struct {
		fix Fix
		err error
	}
	ch := make(chan result, 1)
	go func() {
		fix, err := src.CurrentPosition(lctx, opts)
		ch <- result{fix, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-lctx.Done():
		if ctx.Err() != nil {
			return Fix{}, ctx.Err()
		}
		return Fix{}, ErrTimeout
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return Fix{}, ErrTimeout
		}
		return Fix{}, res.err
	}
	if !res.fix.Position.Valid() {
		return Fix{}, fmt.Errorf("%w: invalid coordinates %v", ErrUnavailable, res.fix.Position)
	}
	if res.fix.AccuracyMeters > opts.MaxAccuracy {
		return res.fix, &AccuracyError{Accuracy: res.fix.AccuracyMeters, Limit: opts.MaxAccuracy}
	}
	return res.fix, nil
}

// Message returns the user-facing alert text for a Locate error.
func Message(err error) string {
	var accErr *AccuracyError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &accErr):
		return fmt.Sprintf("Your location is only accurate to about %.0f m. Move to an open area and try again.", accErr.Accuracy)
	case errors.Is(err, ErrDenied):
		return "Location access was denied. Allow location access for this site and try again."
	case errors.Is(err, ErrTimeout):
		return "Finding your location took too long. Please try again."
	case errors.Is(err, ErrUnavailable):
		return "Your location is unavailable right now. Check that location services are turned on."
	default:
		return "Could not determine your location."
	}
}
