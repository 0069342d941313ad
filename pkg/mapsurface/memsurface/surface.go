// Package memsurface is an in-memory map surface for tests and headless runs.
package memsurface

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kasage/pkg/config"
	"kasage/pkg/mapsurface"
	"kasage/pkg/model"
)

// ErrUnknownHandle is returned for handles the surface never issued or already removed.
var ErrUnknownHandle = errors.New("unknown marker handle")

// Marker is the recorded state of one marker.
type Marker struct {
	mapsurface.MarkerOptions
	mapsurface.MarkerState
}

// Surface records every call made by a mapsurface.Controller.
type Surface struct {
	mu         sync.Mutex
	containers map[string]bool
	maps       int
	options    mapsurface.MapOptions
	next       int
	markers    map[mapsurface.MarkerHandle]*Marker
	camera     mapsurface.Camera
	fitted     *model.Bounds
	padding    config.Padding
	route      *model.Route
	renders    int
	authSubs   map[int]func(string)
	clickSubs  map[int]func(int)
	subID      int

	// CreateMapErr, when set, is returned by CreateMap.
	CreateMapErr error
}

// New creates a surface that hosts the named containers.
func New(containers ...string) *Surface {
	s := &Surface{
		containers: make(map[string]bool),
		markers:    make(map[mapsurface.MarkerHandle]*Marker),
		authSubs:   make(map[int]func(string)),
		clickSubs:  make(map[int]func(int)),
	}
	for _, c := range containers {
		s.containers[c] = true
	}
	return s
}

func (s *Surface) HasContainer(container string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containers[container]
}

func (s *Surface) CreateMap(ctx context.Context, opts mapsurface.MapOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateMapErr != nil {
		return s.CreateMapErr
	}
	s.maps++
	s.options = opts
	s.camera = mapsurface.Camera{Center: opts.Center, Zoom: opts.Zoom}
	return nil
}

func (s *Surface) CreateMarker(opts mapsurface.MarkerOptions) (mapsurface.MarkerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	h := mapsurface.MarkerHandle(fmt.Sprintf("m%d", s.next))
	s.markers[h] = &Marker{MarkerOptions: opts, MarkerState: mapsurface.MarkerState{Visible: true}}
	return h, nil
}

func (s *Surface) UpdateMarker(h mapsurface.MarkerHandle, st mapsurface.MarkerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markers[h]
	if !ok {
		return ErrUnknownHandle
	}
	m.MarkerState = st
	return nil
}

func (s *Surface) RemoveMarker(h mapsurface.MarkerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[h]; !ok {
		return ErrUnknownHandle
	}
	delete(s.markers, h)
	return nil
}

func (s *Surface) SetCamera(c mapsurface.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = c
	s.fitted = nil
	return nil
}

func (s *Surface) FitBounds(b model.Bounds, pad config.Padding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = &b
	s.padding = pad
	return nil
}

func (s *Surface) RenderRoute(r *model.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = r
	s.renders++
	return nil
}

func (s *Surface) ClearRoute() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = nil
	return nil
}

func (s *Surface) OnAuthFailure(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subID++
	id := s.subID
	s.authSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.authSubs, id)
	}
}

func (s *Surface) OnMarkerClick(fn func(int)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subID++
	id := s.subID
	s.clickSubs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.clickSubs, id)
	}
}

// FailAuth fires the auth-failure callbacks the way the provider would.
func (s *Surface) FailAuth(message string) {
	s.mu.Lock()
	subs := make([]func(string), 0, len(s.authSubs))
	for _, fn := range s.authSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(message)
	}
}

// Click fires the marker-click callbacks for an attraction.
func (s *Surface) Click(id int) {
	s.mu.Lock()
	subs := make([]func(int), 0, len(s.clickSubs))
	for _, fn := range s.clickSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(id)
	}
}

// Maps returns how many map instances were created.
func (s *Surface) Maps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maps
}

// Options returns the options of the last CreateMap call.
func (s *Surface) Options() mapsurface.MapOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Markers returns a copy of the live markers of the given kind.
func (s *Surface) Markers(kind mapsurface.MarkerKind) []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Marker
	for _, m := range s.markers {
		if m.Kind == kind {
			out = append(out, *m)
		}
	}
	return out
}

// MarkerFor returns the attraction marker of id.
func (s *Surface) MarkerFor(id int) (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markers {
		if m.Kind == mapsurface.KindAttraction && m.ID == id {
			return *m, true
		}
	}
	return Marker{}, false
}

// Camera returns the last camera set through SetCamera.
func (s *Surface) Camera() mapsurface.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// Fitted returns the bounds and padding of the last FitBounds call since the last SetCamera.
func (s *Surface) Fitted() (*model.Bounds, config.Padding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fitted, s.padding
}

// Route returns the drawn route, nil when none.
func (s *Surface) Route() *model.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Renders returns how many times a route was drawn.
func (s *Surface) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// Subscribers returns the number of auth-failure and click subscriptions.
func (s *Surface) Subscribers() (auth, click int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.authSubs), len(s.clickSubs)
}

var _ mapsurface.Surface = (*Surface)(nil)
