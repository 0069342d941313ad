// Package screen holds the attraction map screen: selection, category filter,
// route display and the user's position, kept in sync with the map surface
// and the card list.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kasage/pkg/attraction"
	"kasage/pkg/config"
	"kasage/pkg/deeplink"
	"kasage/pkg/directions"
	"kasage/pkg/geolocation"
	"kasage/pkg/mapsurface"
	"kasage/pkg/model"
	"kasage/pkg/tracker"
)

var (
	ErrNotMounted        = errors.New("screen not mounted")
	ErrUnknownAttraction = errors.New("unknown attraction")
	ErrUnknownCategory   = errors.New("unknown category")
	// ErrMapUnavailable is returned for map interactions after a provider auth failure.
	ErrMapUnavailable = errors.New("map unavailable")
)

// TrackerProvider is the tracker key for route outcomes seen by the screen.
const TrackerProvider = "routes"

// Phase is the selection state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSelected Phase = "selected"
)

// View is the card list and dialog side of the screen.
type View interface {
	// ScrollToCard brings the card at index into view with smooth, nearest-edge alignment.
	ScrollToCard(index int)
	ScrollToStart()
	Alert(message string)
	// ShowOverlay blocks the map with a diagnostic.
	ShowOverlay(message string)
	Publish(st State)
}

// State is a snapshot of the screen.
type State struct {
	Mounted      bool          `json:"mounted"`
	Phase        Phase         `json:"phase"`
	SelectedID   *int          `json:"selected_id"`
	ActiveFilter string        `json:"active_filter"`
	Visible      []int         `json:"visible"`
	UserPosition *model.LatLng `json:"user_position"`
	Route        *model.Route  `json:"route"`
	RoutePending bool          `json:"route_pending"`
	RouteError   string        `json:"route_error,omitempty"`
	MapError     string        `json:"map_error,omitempty"`
}

// Options configures a Screen.
type Options struct {
	Home         config.HomeConfig
	DefaultZoom  int
	SelectZoom   int
	LocateZoom   int
	Mode         string
	Geolocation  geolocation.Options
	LocateOnLoad bool
	RouteTimeout time.Duration
}

// OptionsFrom builds screen options from the application config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Home:         cfg.Home,
		DefaultZoom:  cfg.Maps.DefaultZoom,
		SelectZoom:   cfg.Maps.SelectZoom,
		LocateZoom:   cfg.Maps.LocateZoom,
		Mode:         cfg.Maps.Mode,
		Geolocation:  geolocation.OptionsFrom(cfg.Geolocation),
		LocateOnLoad: cfg.Geolocation.LocateOnLoad,
		RouteTimeout: cfg.Request.Timeout.Std() * time.Duration(cfg.Request.Retries+1),
	}
}

// Screen is the attraction map screen. All handlers are serialized by one mutex;
// route computations run on their own goroutines and report back through it.
type Screen struct {
	ctrl    *mapsurface.Controller
	catalog *attraction.Catalog
	geo     geolocation.Source
	view    View
	opener  deeplink.Opener
	tracker *tracker.Tracker
	opts    Options

	mu          sync.Mutex
	mounted     bool
	selected    int
	hasSel      bool
	filter      string
	visible     []int
	user        *model.LatLng
	route       *model.Route
	pending     bool
	routeErr    string
	token       uint64
	cancelRoute context.CancelFunc
	cancelLoad  context.CancelFunc

	mapErr atomic.Pointer[string]
	wg     sync.WaitGroup
}

// New creates an unmounted screen.
func New(ctrl *mapsurface.Controller, c *attraction.Catalog, geo geolocation.Source, v View, o deeplink.Opener, t *tracker.Tracker, opts Options) *Screen {
	if opts.DefaultZoom == 0 {
		opts.DefaultZoom = 12
	}
	if opts.SelectZoom == 0 {
		opts.SelectZoom = 13
	}
	if opts.LocateZoom == 0 {
		opts.LocateZoom = 15
	}
	if opts.RouteTimeout <= 0 {
		opts.RouteTimeout = 30 * time.Second
	}
	if opts.Geolocation.Timeout <= 0 {
		opts.Geolocation = geolocation.DefaultOptions()
	}
	return &Screen{
		ctrl:    ctrl,
		catalog: c,
		geo:     geo,
		view:    v,
		opener:  o,
		tracker: t,
		opts:    opts,
		filter:  attraction.All,
	}
}

// Mount creates fresh selection state and makes sure the map exists.
// Mounting again after Unmount reuses the existing map and markers.
func (s *Screen) Mount(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return nil
	}

	s.ctrl.Attach(s.onAuthFailure, s.onMarkerClick)
	s.resetLocked()

	created, err := s.ctrl.Initialize(ctx, s.opts.Home.Location, s.opts.DefaultZoom)
	if err != nil {
		s.ctrl.Detach()
		return fmt.Errorf("failed to initialize map: %w", err)
	}
	if !created {
		if err := s.restoreViewLocked(); err != nil {
			slog.Warn("Failed to restore map view on remount", "error", err)
		}
	}
	s.visible = s.allIDs()
	s.mounted = true
	slog.Debug("Screen mounted", "created_map", created)

	if s.opts.LocateOnLoad && s.geo != nil {
		lctx, cancel := context.WithTimeout(context.Background(), s.opts.Geolocation.Timeout)
		s.cancelLoad = cancel
		s.wg.Add(1)
		go s.locateOnLoad(lctx, cancel)
	}
	s.publishLocked()
	return nil
}

// Unmount discards the selection state and detaches the map listeners.
// In-flight route responses are dropped.
func (s *Screen) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	s.supersedeLocked()
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
	s.ctrl.Teardown()
	s.resetLocked()
	s.mu.Unlock()

	s.wg.Wait()
	slog.Debug("Screen unmounted")
}

// Settle waits for in-flight route requests and load-time lookups.
func (s *Screen) Settle() {
	s.wg.Wait()
}

func (s *Screen) resetLocked() {
	s.hasSel = false
	s.selected = 0
	s.filter = attraction.All
	s.visible = nil
	s.user = nil
	s.route = nil
	s.pending = false
	s.routeErr = ""
}

func (s *Screen) restoreViewLocked() error {
	if err := s.ctrl.ClearRoute(); err != nil {
		return err
	}
	if err := s.ctrl.ClearEmphasis(); err != nil {
		return err
	}
	if _, err := s.ctrl.ApplyFilter(attraction.All); err != nil {
		return err
	}
	if err := s.ctrl.ClearUserMarker(); err != nil {
		return err
	}
	s.view.ScrollToStart()
	return s.ctrl.PanAndZoom(s.opts.Home.Location, s.opts.DefaultZoom, nil)
}

func (s *Screen) allIDs() []int {
	list := s.catalog.List()
	ids := make([]int, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids
}

func (s *Screen) checkLocked() error {
	if !s.mounted {
		return ErrNotMounted
	}
	if s.mapErr.Load() != nil {
		return ErrMapUnavailable
	}
	return nil
}

// Select makes id the selected attraction, emphasizes its marker, moves the
// camera and the card list to it and requests a route from home.
// Selecting the attraction whose route is pending or shown does nothing.
func (s *Screen) Select(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	a, ok := s.catalog.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAttraction, id)
	}
	if s.hasSel && s.selected == id && (s.pending || (s.route != nil && s.route.Destination == a.Location)) {
		return nil
	}

	s.hasSel = true
	s.selected = id
	s.routeErr = ""

	if err := s.ctrl.SetMarkerEmphasis(id, true); err != nil {
		slog.Warn("Failed to emphasize marker", "id", id, "error", err)
	}
	if err := s.ctrl.PanAndZoom(a.Location, s.opts.SelectZoom, nil); err != nil {
		slog.Warn("Failed to move camera", "id", id, "error", err)
	}
	s.view.ScrollToCard(s.catalog.Index(id))
	s.requestRouteLocked(a)

	slog.Info("Attraction selected", "id", id, "name", a.Name)
	s.publishLocked()
	return nil
}

func (s *Screen) supersedeLocked() {
	s.token++
	if s.cancelRoute != nil {
		s.cancelRoute()
		s.cancelRoute = nil
	}
	s.pending = false
}

func (s *Screen) requestRouteLocked(a model.Attraction) {
	s.supersedeLocked()
	token := s.token
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RouteTimeout)
	s.cancelRoute = cancel
	s.pending = true

	origin := s.opts.Home.Location
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		r, err := s.ctrl.RequestRoute(ctx, origin, a.Location, s.opts.Mode)
		s.finishRoute(token, a, r, err)
	}()
}

func (s *Screen) finishRoute(token uint64, a model.Attraction, r *model.Route, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.token || !s.mounted || !s.hasSel || s.selected != a.ID {
		s.tracker.Track(TrackerProvider, tracker.Stale)
		slog.Debug("Dropping stale route response", "id", a.ID)
		return
	}
	s.pending = false
	s.cancelRoute = nil

	if err != nil {
		s.tracker.Track(TrackerProvider, tracker.Failure)
		s.routeErr = directions.Status(err)
		if errors.Is(err, directions.ErrDenied) {
			s.failMap("Directions request denied: " + err.Error())
		}
		slog.Warn("Route unavailable", "id", a.ID, "status", s.routeErr, "error", err)
		s.publishLocked()
		return
	}

	s.tracker.Track(TrackerProvider, tracker.Success)
	s.route = r
	if err := s.ctrl.ShowRoute(r); err != nil {
		slog.Warn("Failed to draw route", "id", a.ID, "error", err)
	}
	slog.Debug("Route shown", "id", a.ID, "distance", r.DistanceText, "duration", r.DurationText)
	s.publishLocked()
}

// Recenter clears the selection and route and returns the camera and card list home.
func (s *Screen) Recenter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}

	s.supersedeLocked()
	s.hasSel = false
	s.selected = 0
	s.route = nil
	s.routeErr = ""

	if err := s.ctrl.ClearRoute(); err != nil {
		slog.Warn("Failed to clear route", "error", err)
	}
	if err := s.ctrl.ClearEmphasis(); err != nil {
		slog.Warn("Failed to clear emphasis", "error", err)
	}
	if err := s.ctrl.PanAndZoom(s.opts.Home.Location, s.opts.DefaultZoom, nil); err != nil {
		slog.Warn("Failed to move camera", "error", err)
	}
	s.view.ScrollToStart()
	s.publishLocked()
	return nil
}

// ChangeFilter shows the markers of category, or all of them for attraction.All.
// Selection and route are left as they are, even when the selected marker is hidden.
func (s *Screen) ChangeFilter(category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}

	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		category = attraction.All
	}
	if !s.catalog.ValidFilter(category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	visible, err := s.ctrl.ApplyFilter(category)
	if err != nil {
		return err
	}
	s.filter = category
	s.visible = visible
	s.publishLocked()
	return nil
}

// LocateMe places the user marker at the device position and pans to it.
// On failure the user is alerted and nothing changes.
func (s *Screen) LocateMe(ctx context.Context) error {
	s.mu.Lock()
	err := s.checkLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.geo == nil {
		s.view.Alert(geolocation.Message(geolocation.ErrUnavailable))
		return geolocation.ErrUnavailable
	}

	fix, err := geolocation.Locate(ctx, s.geo, s.opts.Geolocation)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return ErrNotMounted
	}
	if err != nil {
		slog.Info("Locate failed", "error", err)
		s.view.Alert(geolocation.Message(err))
		return err
	}
	return s.placeUserLocked(fix.Position, true)
}

func (s *Screen) placeUserLocked(pos model.LatLng, pan bool) error {
	if err := s.ctrl.PlaceUserMarker(pos); err != nil {
		return err
	}
	p := pos
	s.user = &p
	if pan {
		if err := s.ctrl.PanAndZoom(pos, s.opts.LocateZoom, nil); err != nil {
			slog.Warn("Failed to move camera", "error", err)
		}
	}
	s.publishLocked()
	return nil
}

func (s *Screen) locateOnLoad(ctx context.Context, cancel context.CancelFunc) {
	defer s.wg.Done()
	defer cancel()

	fix, err := geolocation.Locate(ctx, s.geo, s.opts.Geolocation)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted || s.user != nil {
		return
	}
	if err != nil {
		// Only a rough fix prompts a retry on load.
		if errors.Is(err, geolocation.ErrLowAccuracy) {
			s.view.Alert(geolocation.Message(err))
		}
		slog.Info("Locate on load failed", "error", err)
		return
	}
	if err := s.placeUserLocked(fix.Position, false); err != nil {
		slog.Warn("Failed to place user marker", "error", err)
	}
}

// Navigate opens turn-by-turn directions to the attraction and returns the link.
// The user position is the origin when known.
func (s *Screen) Navigate(id int) (string, error) {
	s.mu.Lock()
	a, ok := s.catalog.Get(id)
	var origin *model.LatLng
	if s.user != nil {
		p := *s.user
		origin = &p
	}
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownAttraction, id)
	}

	link := deeplink.Directions(a.Location, origin)
	deeplink.Launch(s.opener, "directions", link)
	return link, nil
}

// State returns a snapshot of the screen.
func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// MapError returns the terminal map diagnostic, empty when the map is healthy.
func (s *Screen) MapError() string {
	if p := s.mapErr.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *Screen) stateLocked() State {
	st := State{
		Mounted:      s.mounted,
		Phase:        PhaseIdle,
		ActiveFilter: s.filter,
		Visible:      append([]int(nil), s.visible...),
		Route:        s.route,
		RoutePending: s.pending,
		RouteError:   s.routeErr,
		MapError:     s.MapError(),
	}
	if s.hasSel {
		id := s.selected
		st.SelectedID = &id
		st.Phase = PhaseSelected
	}
	if s.user != nil {
		p := *s.user
		st.UserPosition = &p
	}
	return st
}

func (s *Screen) publishLocked() {
	s.view.Publish(s.stateLocked())
}

func (s *Screen) onMarkerClick(id int) {
	if err := s.Select(id); err != nil {
		slog.Debug("Marker click ignored", "id", id, "error", err)
	}
}

// onAuthFailure may run on any goroutine, including while the screen lock is held.
func (s *Screen) onAuthFailure(message string) {
	s.failMap("Google Maps could not authenticate this site: " + message)
}

func (s *Screen) failMap(text string) {
	if !s.mapErr.CompareAndSwap(nil, &text) {
		return
	}
	slog.Error("Map provider failure", "error", text)
	s.view.ShowOverlay(text)
}
