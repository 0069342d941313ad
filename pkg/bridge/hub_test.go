package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasage/pkg/config"
	"kasage/pkg/geolocation"
	"kasage/pkg/mapsurface"
	"kasage/pkg/model"
	"kasage/pkg/screen"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func connect(t *testing.T, h *Hub) (*websocket.Conn, Scene) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := readFrame(t, conn)
	require.Equal(t, CmdSnapshot, f.Type)
	var sc Scene
	require.NoError(t, json.Unmarshal(f.Payload, &sc))
	return conn, sc
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		if f := readFrame(t, conn); f.Type == typ {
			return f
		}
	}
	t.Fatalf("no %s frame received", typ)
	return frame{}
}

func TestHub_SnapshotReplaysScene(t *testing.T) {
	h := NewHub("map")
	home := model.LatLng{Lat: 14.415, Lng: 74.755}

	require.NoError(t, h.CreateMap(context.Background(), mapsurface.MapOptions{Container: "map", Center: home, Zoom: 12}))
	hd, err := h.CreateMarker(mapsurface.MarkerOptions{Kind: mapsurface.KindHome, Position: home, Title: "Kasage Homestay"})
	require.NoError(t, err)
	_, err = h.CreateMarker(mapsurface.MarkerOptions{Kind: mapsurface.KindAttraction, ID: 1, Title: "Benne Hole Falls"})
	require.NoError(t, err)
	require.NoError(t, h.UpdateMarker(hd, mapsurface.MarkerState{Visible: false}))
	require.NoError(t, h.RenderRoute(&model.Route{Path: []model.LatLng{home, {Lat: 14.39, Lng: 74.78}}, DistanceText: "5.2 km"}))
	h.ShowOverlay("auth failed")
	h.Publish(screen.State{Mounted: true, Phase: screen.PhaseIdle, ActiveFilter: "all"})

	_, sc := connect(t, h)

	require.NotNil(t, sc.Map)
	assert.Equal(t, 12, sc.Map.Zoom)
	require.Len(t, sc.Markers, 2)
	assert.Equal(t, hd, sc.Markers[0].Handle)
	assert.False(t, sc.Markers[0].State.Visible)
	assert.True(t, sc.Markers[1].State.Visible)
	require.NotNil(t, sc.Route)
	assert.NotEmpty(t, sc.Route.Polyline)
	assert.Equal(t, "5.2 km", sc.Route.DistanceText)
	assert.Equal(t, "auth failed", sc.Overlay)
	require.NotNil(t, sc.State)
	assert.True(t, sc.State.Mounted)
	assert.Equal(t, 1, h.Clients())
}

func TestHub_StreamsCommands(t *testing.T) {
	h := NewHub("map")
	conn, _ := connect(t, h)

	require.NoError(t, h.CreateMap(context.Background(), mapsurface.MapOptions{Container: "map", Zoom: 12}))
	assert.Equal(t, CmdMap, readFrame(t, conn).Type)

	hd, err := h.CreateMarker(mapsurface.MarkerOptions{Kind: mapsurface.KindUser})
	require.NoError(t, err)
	assert.Equal(t, CmdMarkerAdd, readFrame(t, conn).Type)

	require.NoError(t, h.RemoveMarker(hd))
	f := readFrame(t, conn)
	assert.Equal(t, CmdMarkerRemove, f.Type)
	assert.Contains(t, string(f.Payload), string(hd))
	assert.Error(t, h.RemoveMarker(hd))

	require.NoError(t, h.FitBounds(model.Bounds{}, config.Padding{Bottom: 320}))
	f = readFrame(t, conn)
	assert.Equal(t, CmdFit, f.Type)
	var fit Fit
	require.NoError(t, json.Unmarshal(f.Payload, &fit))
	assert.Equal(t, 320, fit.Padding.Bottom)

	h.ScrollToCard(3)
	f = readFrame(t, conn)
	var sp ScrollPayload
	require.NoError(t, json.Unmarshal(f.Payload, &sp))
	assert.Equal(t, ScrollPayload{Index: 3, Behavior: "smooth", Inline: "nearest"}, sp)

	h.Open("tel:+9199074233664")
	f = readFrame(t, conn)
	assert.Equal(t, CmdOpen, f.Type)
	assert.Contains(t, string(f.Payload), "tel:+9199074233664")
}

func TestHub_MarkerClickAndAuthFailure(t *testing.T) {
	h := NewHub("map")
	conn, _ := connect(t, h)

	clicks := make(chan int, 1)
	unsubClick := h.OnMarkerClick(func(id int) { clicks <- id })
	defer unsubClick()

	auth := make(chan string, 1)
	unsubAuth := h.OnAuthFailure(func(msg string) { auth <- msg })

	require.NoError(t, conn.WriteJSON(Event{Type: EvtMarkerClick, ID: 4}))
	select {
	case id := <-clicks:
		assert.Equal(t, 4, id)
	case <-time.After(2 * time.Second):
		t.Fatal("marker click not delivered")
	}

	require.NoError(t, conn.WriteJSON(Event{Type: EvtAuthFailure, Message: "InvalidKeyMapError"}))
	select {
	case msg := <-auth:
		assert.Equal(t, "InvalidKeyMapError", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("auth failure not delivered")
	}

	unsubAuth()
}

func TestHub_AuthFailureBeforeSubscribe(t *testing.T) {
	h := NewHub("map")
	h.Dispatch(Event{Type: EvtAuthFailure, Message: "ApiNotActivatedMapError"})

	// The subscriber holds its own lock while subscribing, as the map controller does.
	var mu sync.Mutex
	got := make(chan string, 1)
	mu.Lock()
	unsub := h.OnAuthFailure(func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		got <- msg
	})
	mu.Unlock()
	defer unsub()

	select {
	case msg := <-got:
		assert.Equal(t, "ApiNotActivatedMapError", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("pending auth failure not replayed")
	}

	var second atomic.Int32
	unsub2 := h.OnAuthFailure(func(string) { second.Add(1) })
	defer unsub2()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, second.Load(), "a pending failure is delivered once")
}

func TestHub_CurrentPosition(t *testing.T) {
	tests := []struct {
		name    string
		reply   Event
		wantErr error
	}{
		{"Fix", Event{Lat: 14.42, Lng: 74.76, Accuracy: 35}, nil},
		{"Denied", Event{Error: GeoDenied}, geolocation.ErrDenied},
		{"Timeout", Event{Error: GeoTimeout}, geolocation.ErrTimeout},
		{"Unavailable", Event{Error: GeoUnavailable, Message: "position unavailable"}, geolocation.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub("map")
			conn, _ := connect(t, h)

			type result struct {
				fix geolocation.Fix
				err error
			}
			done := make(chan result, 1)
			go func() {
				fix, err := h.CurrentPosition(context.Background(), geolocation.DefaultOptions())
				done <- result{fix, err}
			}()

			f := readUntil(t, conn, CmdLocate)
			var req LocatePayload
			require.NoError(t, json.Unmarshal(f.Payload, &req))
			assert.NotEmpty(t, req.RequestID)
			assert.True(t, req.HighAccuracy)
			assert.Equal(t, int64(10000), req.TimeoutMS)

			reply := tt.reply
			reply.Type = EvtGeolocation
			reply.RequestID = req.RequestID
			require.NoError(t, conn.WriteJSON(reply))

			select {
			case res := <-done:
				if tt.wantErr != nil {
					assert.ErrorIs(t, res.err, tt.wantErr)
					return
				}
				require.NoError(t, res.err)
				assert.Equal(t, model.LatLng{Lat: 14.42, Lng: 74.76}, res.fix.Position)
				assert.Equal(t, 35.0, res.fix.AccuracyMeters)
			case <-time.After(2 * time.Second):
				t.Fatal("no geolocation result")
			}
		})
	}
}

func TestHub_CurrentPosition_NoClient(t *testing.T) {
	h := NewHub("map")
	_, err := h.CurrentPosition(context.Background(), geolocation.DefaultOptions())
	assert.ErrorIs(t, err, geolocation.ErrUnavailable)
	assert.ErrorIs(t, err, ErrNoClient)
}

type recordingActions struct {
	mu     sync.Mutex
	calls  []string
	signal chan struct{}
}

func (a *recordingActions) record(s string) {
	a.mu.Lock()
	a.calls = append(a.calls, s)
	a.mu.Unlock()
	a.signal <- struct{}{}
}

func (a *recordingActions) Select(id int) error {
	a.record("select")
	return nil
}

func (a *recordingActions) Recenter() error {
	a.record("recenter")
	return nil
}

func (a *recordingActions) ChangeFilter(c string) error {
	a.record("filter:" + c)
	return nil
}

func (a *recordingActions) LocateMe(ctx context.Context) error {
	a.record("locate")
	return errors.New("no fix")
}

func (a *recordingActions) Navigate(id int) (string, error) {
	a.record("navigate")
	return "", nil
}

func TestHub_DispatchesActions(t *testing.T) {
	h := NewHub("map")
	acts := &recordingActions{signal: make(chan struct{}, 8)}
	h.SetActions(acts)
	conn, _ := connect(t, h)

	events := []Event{
		{Type: EvtCardTap, ID: 2},
		{Type: EvtFilter, Category: "temple"},
		{Type: EvtRecenter},
		{Type: EvtNavigate, ID: 2},
		{Type: EvtLocate},
	}
	for _, ev := range events {
		require.NoError(t, conn.WriteJSON(ev))
		select {
		case <-acts.signal:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s not dispatched", ev.Type)
		}
	}

	acts.mu.Lock()
	defer acts.mu.Unlock()
	assert.Equal(t, []string{"select", "filter:temple", "recenter", "navigate", "locate"}, acts.calls)
}

func TestHub_HasContainer(t *testing.T) {
	h := NewHub("map")
	assert.True(t, h.HasContainer("map"))
	assert.False(t, h.HasContainer("booking"))
}
