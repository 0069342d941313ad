package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kasage/pkg/config"
	"kasage/pkg/deeplink"
	"kasage/pkg/directions"
	"kasage/pkg/geolocation"
	"kasage/pkg/logging"
	"kasage/pkg/mapsurface"
	"kasage/pkg/model"
	"kasage/pkg/screen"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
	maxMessage = 4096
)

// ErrNoClient is returned when an operation needs a connected browser.
var ErrNoClient = errors.New("no browser connected")

// Actions receives the UI events that are not map-level callbacks.
type Actions interface {
	Select(id int) error
	Recenter() error
	ChangeFilter(category string) error
	LocateMe(ctx context.Context) error
	Navigate(id int) (string, error)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub is the server end of the map bridge. It implements mapsurface.Surface,
// screen.View, deeplink.Opener and geolocation.Source.
type Hub struct {
	upgrader  websocket.Upgrader
	container string
	logger    *slog.Logger

	mu          sync.Mutex
	clients     map[*client]struct{}
	scene       Scene
	markers     map[mapsurface.MarkerHandle]*Marker
	order       []mapsurface.MarkerHandle
	authSubs    map[uint64]func(string)
	clickSubs   map[uint64]func(int)
	subID       uint64
	pendingAuth string
	geoWaiters  map[string]chan Event
	actions     Actions
}

// NewHub creates a hub for a page whose map lives in the named container element.
func NewHub(container string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		container:  container,
		logger:     slog.With("component", "bridge"),
		clients:    make(map[*client]struct{}),
		markers:    make(map[mapsurface.MarkerHandle]*Marker),
		authSubs:   make(map[uint64]func(string)),
		clickSubs:  make(map[uint64]func(int)),
		geoWaiters: make(map[string]chan Event),
	}
}

// SetActions wires the UI events to the screen.
func (h *Hub) SetActions(a Actions) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = a
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Snapshot returns a copy of the current scene.
func (h *Hub) Snapshot() Scene {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() Scene {
	sc := h.scene
	sc.Markers = make([]Marker, 0, len(h.order))
	for _, hd := range h.order {
		sc.Markers = append(sc.Markers, *h.markers[hd])
	}
	return sc
}

// ServeHTTP upgrades the request and serves one browser until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	snap, err := encode(Command{Type: CmdSnapshot, Payload: h.snapshotLocked()})
	if err != nil {
		h.mu.Unlock()
		h.logger.Error("Failed to encode snapshot", "error", err)
		conn.Close()
		return
	}
	c.send <- snap
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Browser connected", "remote", r.RemoteAddr, "clients", n)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Browser disconnected", "clients", n)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Websocket read failed", "error", err)
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			h.logger.Warn("Dropping malformed event", "error", err)
			continue
		}
		logging.Trace(h.logger, "Bridge event", "type", ev.Type, "id", ev.ID)
		h.Dispatch(ev)
	}
}

// Dispatch routes one browser event. Callbacks run without the hub lock held.
func (h *Hub) Dispatch(ev Event) {
	switch ev.Type {
	case EvtMarkerClick:
		for _, fn := range h.clickListeners() {
			fn(ev.ID)
		}
	case EvtAuthFailure:
		h.failAuth(ev.Message)
	case EvtGeolocation:
		h.mu.Lock()
		ch, ok := h.geoWaiters[ev.RequestID]
		h.mu.Unlock()
		if !ok {
			h.logger.Debug("Dropping unmatched geolocation reply", "request_id", ev.RequestID)
			return
		}
		select {
		case ch <- ev:
		default:
		}
	case EvtCardTap, EvtRecenter, EvtFilter, EvtLocate, EvtNavigate:
		h.dispatchAction(ev)
	default:
		h.logger.Debug("Ignoring unknown event", "type", ev.Type)
	}
}

func (h *Hub) dispatchAction(ev Event) {
	h.mu.Lock()
	a := h.actions
	h.mu.Unlock()
	if a == nil {
		return
	}

	var err error
	switch ev.Type {
	case EvtCardTap:
		err = a.Select(ev.ID)
	case EvtRecenter:
		err = a.Recenter()
	case EvtFilter:
		err = a.ChangeFilter(ev.Category)
	case EvtNavigate:
		_, err = a.Navigate(ev.ID)
	case EvtLocate:
		// The fix arrives on this read loop, so the request must not block it.
		go func() {
			if err := a.LocateMe(context.Background()); err != nil {
				h.logger.Debug("Locate failed", "error", err)
			}
		}()
	}
	if err != nil {
		h.logger.Debug("UI action rejected", "type", ev.Type, "error", err)
	}
}

func (h *Hub) clickListeners() []func(int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]func(int), 0, len(h.clickSubs))
	for _, fn := range h.clickSubs {
		out = append(out, fn)
	}
	return out
}

func (h *Hub) failAuth(message string) {
	h.mu.Lock()
	subs := make([]func(string), 0, len(h.authSubs))
	for _, fn := range h.authSubs {
		subs = append(subs, fn)
	}
	if len(subs) == 0 {
		h.pendingAuth = message
	}
	h.mu.Unlock()

	h.logger.Warn("Map provider reported an auth failure", "message", message)
	for _, fn := range subs {
		fn(message)
	}
}

// broadcastLocked queues cmd for every client. Slow clients are dropped.
func (h *Hub) broadcastLocked(cmd Command) {
	data, err := encode(cmd)
	if err != nil {
		h.logger.Error("Failed to encode command", "type", cmd.Type, "error", err)
		return
	}
	logging.Trace(h.logger, "Bridge command", "type", cmd.Type, "bytes", len(data))
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Dropping slow browser")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) broadcast(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(cmd)
}

// Close disconnects every browser.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// --- mapsurface.Surface ---

func (h *Hub) HasContainer(container string) bool {
	return container == h.container
}

func (h *Hub) CreateMap(ctx context.Context, opts mapsurface.MapOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scene.Map != nil {
		return fmt.Errorf("map already created in container %q", opts.Container)
	}
	o := opts
	h.scene.Map = &o
	h.scene.Camera = &mapsurface.Camera{Center: opts.Center, Zoom: opts.Zoom}
	h.broadcastLocked(Command{Type: CmdMap, Payload: o})
	return nil
}

func (h *Hub) CreateMarker(opts mapsurface.MarkerOptions) (mapsurface.MarkerHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hd := mapsurface.MarkerHandle(uuid.NewString())
	m := &Marker{Handle: hd, Opts: opts, State: mapsurface.MarkerState{Visible: true}}
	h.markers[hd] = m
	h.order = append(h.order, hd)
	h.broadcastLocked(Command{Type: CmdMarkerAdd, Payload: *m})
	return hd, nil
}

func (h *Hub) UpdateMarker(hd mapsurface.MarkerHandle, st mapsurface.MarkerState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.markers[hd]
	if !ok {
		return fmt.Errorf("unknown marker %s", hd)
	}
	m.State = st
	h.broadcastLocked(Command{Type: CmdMarkerUpdate, Payload: *m})
	return nil
}

func (h *Hub) RemoveMarker(hd mapsurface.MarkerHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.markers[hd]; !ok {
		return fmt.Errorf("unknown marker %s", hd)
	}
	delete(h.markers, hd)
	for i, o := range h.order {
		if o == hd {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.broadcastLocked(Command{Type: CmdMarkerRemove, Payload: map[string]string{"handle": string(hd)}})
	return nil
}

func (h *Hub) SetCamera(c mapsurface.Camera) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scene.Camera = &c
	h.scene.Fit = nil
	h.broadcastLocked(Command{Type: CmdCamera, Payload: c})
	return nil
}

func (h *Hub) FitBounds(b model.Bounds, pad config.Padding) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := Fit{Bounds: b, Padding: pad}
	h.scene.Fit = &f
	h.broadcastLocked(Command{Type: CmdFit, Payload: f})
	return nil
}

func (h *Hub) RenderRoute(r *model.Route) error {
	p := RoutePayload{
		Polyline:     directions.EncodePolyline(r.Path),
		Bounds:       r.Bounds,
		Destination:  r.Destination,
		DistanceText: r.DistanceText,
		DurationText: r.DurationText,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scene.Route = &p
	h.broadcastLocked(Command{Type: CmdRoute, Payload: p})
	return nil
}

func (h *Hub) ClearRoute() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scene.Route = nil
	h.broadcastLocked(Command{Type: CmdRouteClear})
	return nil
}

// OnAuthFailure subscribes fn. A failure reported while nobody listened is
// delivered to the first subscriber on its own goroutine, so callers may
// subscribe while holding their own locks.
func (h *Hub) OnAuthFailure(fn func(string)) func() {
	h.mu.Lock()
	h.subID++
	id := h.subID
	h.authSubs[id] = fn
	pending := h.pendingAuth
	h.pendingAuth = ""
	h.mu.Unlock()

	if pending != "" {
		go fn(pending)
	}
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.authSubs, id)
	}
}

func (h *Hub) OnMarkerClick(fn func(int)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subID++
	id := h.subID
	h.clickSubs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.clickSubs, id)
	}
}

// --- screen.View ---

func (h *Hub) ScrollToCard(index int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := ScrollPayload{Index: index, Behavior: "smooth", Inline: "nearest"}
	h.scene.Card = &p
	h.broadcastLocked(Command{Type: CmdScrollCard, Payload: p})
}

func (h *Hub) ScrollToStart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scene.Card = nil
	h.broadcastLocked(Command{Type: CmdScrollStart})
}

func (h *Hub) Alert(message string) {
	h.broadcast(Command{Type: CmdAlert, Payload: map[string]string{"message": message}})
}

func (h *Hub) ShowOverlay(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scene.Overlay = message
	h.broadcastLocked(Command{Type: CmdOverlay, Payload: map[string]string{"message": message}})
}

func (h *Hub) Publish(st screen.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scene.State = &st
	h.broadcastLocked(Command{Type: CmdState, Payload: st})
}

// --- deeplink.Opener ---

// Open asks the browsers to open link in a new browsing context.
func (h *Hub) Open(link string) {
	h.broadcast(Command{Type: CmdOpen, Payload: map[string]string{"url": link, "target": "_blank"}})
}

// --- geolocation.Source ---

// CurrentPosition asks the connected browsers for a fix; the first reply wins.
func (h *Hub) CurrentPosition(ctx context.Context, opts geolocation.Options) (geolocation.Fix, error) {
	id := uuid.NewString()
	ch := make(chan Event, 1)

	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return geolocation.Fix{}, fmt.Errorf("%w: %w", geolocation.ErrUnavailable, ErrNoClient)
	}
	h.geoWaiters[id] = ch
	h.broadcastLocked(Command{Type: CmdLocate, Payload: LocatePayload{
		RequestID:    id,
		HighAccuracy: opts.HighAccuracy,
		TimeoutMS:    opts.Timeout.Milliseconds(),
		MaxAgeMS:     opts.MaxCacheAge.Milliseconds(),
	}})
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.geoWaiters, id)
		h.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return geolocation.Fix{}, ctx.Err()
	case ev := <-ch:
		switch ev.Error {
		case "":
			return geolocation.Fix{
				Position:       model.LatLng{Lat: ev.Lat, Lng: ev.Lng},
				AccuracyMeters: ev.Accuracy,
			}, nil
		case GeoDenied:
			return geolocation.Fix{}, geolocation.ErrDenied
		case GeoTimeout:
			return geolocation.Fix{}, geolocation.ErrTimeout
		default:
			return geolocation.Fix{}, fmt.Errorf("%w: %s", geolocation.ErrUnavailable, ev.Message)
		}
	}
}

var (
	_ mapsurface.Surface = (*Hub)(nil)
	_ screen.View        = (*Hub)(nil)
	_ deeplink.Opener    = (*Hub)(nil)
	_ geolocation.Source = (*Hub)(nil)
)
