package mapsurface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"kasage/pkg/attraction"
	"kasage/pkg/config"
	"kasage/pkg/model"
)

var (
	// ErrNoContainer means the page has no element to host the map.
	ErrNoContainer = errors.New("map container not found")
	// ErrNotInitialized is returned by marker and camera operations before Initialize.
	ErrNotInitialized = errors.New("map not initialized")
	// ErrUnknownMarker means no attraction marker is registered for the id.
	ErrUnknownMarker = errors.New("unknown attraction marker")
)

// Options configures a Controller.
type Options struct {
	Container    string
	Home         config.HomeConfig
	Mode         string
	Bounce       time.Duration
	RoutePadding config.Padding
	// Dev panics on a missing container instead of returning ErrNoContainer.
	Dev bool
}

type markerEntry struct {
	handle     MarkerHandle
	attr       model.Attraction
	color      string
	visible    bool
	emphasized bool
}

// Controller is the only component that speaks to the map provider.
// Listener callbacks registered through Attach are never invoked while the
// controller lock is held.
type Controller struct {
	surface Surface
	router  Router
	catalog *attraction.Catalog
	opts    Options

	mu         sync.Mutex
	created    bool
	home       MarkerHandle
	markers    map[int]*markerEntry
	user       MarkerHandle
	routeShown bool
	bounce     *time.Timer
	unsubAuth  func()
	unsubClick func()
}

// NewController creates a controller for the catalog on the given surface.
func NewController(s Surface, r Router, c *attraction.Catalog, opts Options) *Controller {
	if opts.Container == "" {
		opts.Container = "map"
	}
	if opts.Mode == "" {
		opts.Mode = "driving"
	}
	if opts.Bounce <= 0 {
		opts.Bounce = 700 * time.Millisecond
	}
	return &Controller{
		surface: s,
		router:  r,
		catalog: c,
		opts:    opts,
		markers: make(map[int]*markerEntry),
	}
}

// Attach subscribes the provider auth-failure and marker-click callbacks,
// replacing any previous subscription.
func (c *Controller) Attach(onAuthFailure func(message string), onMarkerClick func(id int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
	if onAuthFailure != nil {
		c.unsubAuth = c.surface.OnAuthFailure(onAuthFailure)
	}
	if onMarkerClick != nil {
		c.unsubClick = c.surface.OnMarkerClick(onMarkerClick)
	}
}

// Detach removes the callbacks registered by Attach. Safe to call repeatedly.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detachLocked()
}

func (c *Controller) detachLocked() {
	if c.unsubAuth != nil {
		c.unsubAuth()
		c.unsubAuth = nil
	}
	if c.unsubClick != nil {
		c.unsubClick()
		c.unsubClick = nil
	}
}

// Attached reports whether a listener subscription is active.
func (c *Controller) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubAuth != nil || c.unsubClick != nil
}

// Initialize creates the map and its home and attraction markers.
// It runs at most once per controller; later calls return created=false.
func (c *Controller) Initialize(ctx context.Context, center model.LatLng, zoom int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.created {
		return false, nil
	}
	if !c.surface.HasContainer(c.opts.Container) {
		if c.opts.Dev {
			panic(fmt.Sprintf("mapsurface: container %q not found", c.opts.Container))
		}
		return false, ErrNoContainer
	}

	err := c.surface.CreateMap(ctx, MapOptions{
		Container:  c.opts.Container,
		Center:     center,
		Zoom:       zoom,
		HideChrome: true,
		Styles:     DefaultStyles,
	})
	if err != nil {
		return false, fmt.Errorf("failed to create map: %w", err)
	}
	c.created = true

	h, err := c.surface.CreateMarker(MarkerOptions{
		Kind:     KindHome,
		Position: c.opts.Home.Location,
		Title:    c.opts.Home.Name,
		Label:    "H",
	})
	if err != nil {
		return true, fmt.Errorf("failed to place home marker: %w", err)
	}
	c.home = h

	for _, a := range c.catalog.List() {
		color := c.catalog.Color(a.Category)
		if a.Color != "" {
			color = a.Color
		}
		h, err := c.surface.CreateMarker(MarkerOptions{
			Kind:     KindAttraction,
			ID:       a.ID,
			Position: a.Location,
			Title:    a.Name,
			Color:    color,
		})
		if err != nil {
			return true, fmt.Errorf("failed to place marker for %q: %w", a.Name, err)
		}
		c.markers[a.ID] = &markerEntry{handle: h, attr: a, color: color, visible: true}
	}

	slog.Info("Map initialized", "markers", len(c.markers)+1, "zoom", zoom)
	return true, nil
}

// Initialized reports whether the map instance exists.
func (c *Controller) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// PlaceMarker creates an ad-hoc marker outside the attraction registry.
func (c *Controller) PlaceMarker(opts MarkerOptions) (MarkerHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return "", ErrNotInitialized
	}
	return c.surface.CreateMarker(opts)
}

// SetMarkerEmphasis emphasizes the marker of id and returns every other marker
// to its default size. Emphasis bounces the marker briefly.
func (c *Controller) SetMarkerEmphasis(id int, emphasized bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return ErrNotInitialized
	}
	target, ok := c.markers[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMarker, id)
	}

	c.stopBounceLocked()
	if !emphasized {
		target.emphasized = false
		return c.pushLocked(target, false)
	}

	for otherID, e := range c.markers {
		if otherID == id || !e.emphasized {
			continue
		}
		e.emphasized = false
		if err := c.pushLocked(e, false); err != nil {
			return err
		}
	}
	target.emphasized = true
	if err := c.pushLocked(target, true); err != nil {
		return err
	}

	c.bounce = time.AfterFunc(c.opts.Bounce, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.markers[id]; ok && e.emphasized {
			if err := c.pushLocked(e, false); err != nil {
				slog.Debug("Failed to stop marker bounce", "id", id, "error", err)
			}
		}
	})
	return nil
}

// ClearEmphasis returns all attraction markers to their default size.
func (c *Controller) ClearEmphasis() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopBounceLocked()
	for _, e := range c.markers {
		if !e.emphasized {
			continue
		}
		e.emphasized = false
		if err := c.pushLocked(e, false); err != nil {
			return err
		}
	}
	return nil
}

// SetMarkerVisibility shows or hides a marker without destroying it.
func (c *Controller) SetMarkerVisibility(id int, visible bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return ErrNotInitialized
	}
	e, ok := c.markers[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMarker, id)
	}
	if e.visible == visible {
		return nil
	}
	e.visible = visible
	return c.pushLocked(e, false)
}

// ApplyFilter shows the markers matching filter and hides the rest.
// It returns the ids left visible in catalog order.
func (c *Controller) ApplyFilter(filter string) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return nil, ErrNotInitialized
	}
	var shown []int
	for _, a := range c.catalog.List() {
		e, ok := c.markers[a.ID]
		if !ok {
			continue
		}
		visible := attraction.Matches(e.attr, filter)
		if visible {
			shown = append(shown, a.ID)
		}
		if e.visible == visible {
			continue
		}
		e.visible = visible
		if err := c.pushLocked(e, false); err != nil {
			return shown, err
		}
	}
	return shown, nil
}

func (c *Controller) pushLocked(e *markerEntry, bounce bool) error {
	return c.surface.UpdateMarker(e.handle, MarkerState{
		Visible:    e.visible,
		Emphasized: e.emphasized,
		Bounce:     bounce && e.visible,
	})
}

func (c *Controller) stopBounceLocked() {
	if c.bounce != nil {
		c.bounce.Stop()
		c.bounce = nil
	}
}

// PanAndZoom moves the camera. pad may be nil.
func (c *Controller) PanAndZoom(point model.LatLng, zoom int, pad *config.Padding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return ErrNotInitialized
	}
	return c.surface.SetCamera(Camera{Center: point, Zoom: zoom, Padding: pad})
}

// RequestRoute asks the router for a route. An empty mode uses the configured default.
// It does not touch the surface and may run concurrently with other operations.
func (c *Controller) RequestRoute(ctx context.Context, origin, dest model.LatLng, mode string) (*model.Route, error) {
	if mode == "" {
		mode = c.opts.Mode
	}
	return c.router.Route(ctx, origin, dest, mode)
}

// ShowRoute replaces the drawn route and fits the viewport to it, leaving
// room for the card panel at the bottom.
func (c *Controller) ShowRoute(r *model.Route) error {
	if r == nil {
		return c.ClearRoute()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return ErrNotInitialized
	}
	if err := c.surface.RenderRoute(r); err != nil {
		return err
	}
	c.routeShown = true
	return c.surface.FitBounds(r.Bounds, c.opts.RoutePadding)
}

// ClearRoute removes the drawn route. Idempotent.
func (c *Controller) ClearRoute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.routeShown {
		return nil
	}
	if err := c.surface.ClearRoute(); err != nil {
		return err
	}
	c.routeShown = false
	return nil
}

// RouteShown reports whether a route is drawn.
func (c *Controller) RouteShown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routeShown
}

// PlaceUserMarker replaces the live-location marker.
func (c *Controller) PlaceUserMarker(point model.LatLng) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.created {
		return ErrNotInitialized
	}
	if c.user != "" {
		if err := c.surface.RemoveMarker(c.user); err != nil {
			return fmt.Errorf("failed to remove user marker: %w", err)
		}
		c.user = ""
	}
	h, err := c.surface.CreateMarker(MarkerOptions{Kind: KindUser, Position: point, Title: "You are here"})
	if err != nil {
		return err
	}
	c.user = h
	return nil
}

// ClearUserMarker removes the live-location marker, if any.
func (c *Controller) ClearUserMarker() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == "" {
		return nil
	}
	if err := c.surface.RemoveMarker(c.user); err != nil {
		return fmt.Errorf("failed to remove user marker: %w", err)
	}
	c.user = ""
	return nil
}

// MarkerCount returns the number of home and attraction markers.
func (c *Controller) MarkerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.markers)
	if c.home != "" {
		n++
	}
	return n
}

// Emphasized returns the ids of emphasized markers, sorted.
func (c *Controller) Emphasized() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int
	for id, e := range c.markers {
		if e.emphasized {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Visible reports whether the marker of id is shown.
func (c *Controller) Visible(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.markers[id]
	return ok && e.visible
}

// Teardown detaches the listeners and stops pending animations.
// The map instance and its markers survive for the next mount.
func (c *Controller) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopBounceLocked()
	c.detachLocked()
}
