package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasage/pkg/attraction"
	"kasage/pkg/booking"
	"kasage/pkg/bridge"
	"kasage/pkg/config"
	"kasage/pkg/geo"
	"kasage/pkg/mapsurface"
	"kasage/pkg/model"
	"kasage/pkg/screen"
	"kasage/pkg/tracker"
)

type routerFunc func(ctx context.Context, origin, dest model.LatLng, mode string) (*model.Route, error)

func (f routerFunc) Route(ctx context.Context, origin, dest model.LatLng, mode string) (*model.Route, error) {
	return f(ctx, origin, dest, mode)
}

func straightRoute(ctx context.Context, origin, dest model.LatLng, mode string) (*model.Route, error) {
	path := []model.LatLng{origin, dest}
	return &model.Route{
		Origin:       origin,
		Destination:  dest,
		Mode:         mode,
		Path:         path,
		Bounds:       geo.BoundsOf(path),
		DistanceText: "5 km",
		DurationText: "15 mins",
	}, nil
}

type testEnv struct {
	srv      *http.Server
	hub      *bridge.Hub
	screen   *screen.Screen
	tracker  *tracker.Tracker
	shutdown chan struct{}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Maps.APIKey = "browser-key"
	if mutate != nil {
		mutate(cfg)
	}

	catalog, err := attraction.Default()
	require.NoError(t, err)

	hub := bridge.NewHub("map")
	tr := tracker.New()
	ctrl := mapsurface.NewController(hub, routerFunc(straightRoute), catalog, mapsurface.Options{
		Container:    "map",
		Home:         cfg.Home,
		Mode:         cfg.Maps.Mode,
		RoutePadding: cfg.Maps.RoutePadding,
	})
	scr := screen.New(ctrl, catalog, hub, hub, hub, tr, screen.OptionsFrom(cfg))
	require.NoError(t, scr.Mount(context.Background()))
	t.Cleanup(func() {
		scr.Unmount()
		hub.Close()
	})

	env := &testEnv{hub: hub, screen: scr, tracker: tr, shutdown: make(chan struct{}, 1)}
	env.srv = NewServer("127.0.0.1:0",
		NewConfigHandler(cfg, "map"),
		NewAttractionHandler(catalog),
		NewScreenHandler(scr),
		NewBookingHandler(booking.NewPage(cfg.Home, cfg.Booking), hub),
		NewStatsHandler(tr, hub.Clients),
		hub,
		func() { env.shutdown <- struct{}{} },
	)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestServer_HealthAndVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["version"])
}

func TestServer_Config(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ConfigResponse](t, rec)
	assert.Equal(t, "browser-key", got.MapsAPIKey)
	assert.Equal(t, "map", got.Container)
	assert.Equal(t, 12, got.DefaultZoom)
	assert.Equal(t, config.DefaultConfig().Home.Location, got.Home)
}

func TestServer_Catalog(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/attractions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]model.Attraction](t, rec)
	require.NotEmpty(t, items)
	assert.Equal(t, 1, items[0].ID)

	rec = env.do(t, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[[]CategoryDTO](t, rec)
	require.NotEmpty(t, cats)
	assert.Equal(t, attraction.All, cats[0].Name)
	assert.Equal(t, len(items), cats[0].Count)

	total := 0
	for _, c := range cats[1:] {
		assert.Positive(t, c.Count, "category %s has no attractions", c.Name)
		total += c.Count
	}
	assert.Equal(t, len(items), total)
}

func TestServer_ScreenActions(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		check      func(*testing.T, screen.State)
	}{
		{
			name:       "Select",
			method:     http.MethodPost,
			path:       "/api/screen/select/3",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, st screen.State) {
				require.NotNil(t, st.SelectedID)
				assert.Equal(t, 3, *st.SelectedID)
				assert.Equal(t, screen.PhaseSelected, st.Phase)
			},
		},
		{
			name:       "Select_Unknown",
			method:     http.MethodPost,
			path:       "/api/screen/select/99",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Select_BadID",
			method:     http.MethodPost,
			path:       "/api/screen/select/abc",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Recenter",
			method:     http.MethodPost,
			path:       "/api/screen/recenter",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, st screen.State) {
				assert.Nil(t, st.SelectedID)
				assert.Equal(t, screen.PhaseIdle, st.Phase)
			},
		},
		{
			name:       "Filter",
			method:     http.MethodPost,
			path:       "/api/screen/filter",
			body:       `{"category":"Temple"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, st screen.State) {
				assert.Equal(t, "temple", st.ActiveFilter)
				assert.Equal(t, []int{3}, st.Visible)
			},
		},
		{
			name:       "Filter_Unknown",
			method:     http.MethodPost,
			path:       "/api/screen/filter",
			body:       `{"category":"boating"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Filter_BadBody",
			method:     http.MethodPost,
			path:       "/api/screen/filter",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Locate_NoBrowser",
			method:     http.MethodPost,
			path:       "/api/screen/locate",
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, decode[screen.State](t, rec))
			}
		})
	}
}

func TestServer_SelectDrawsRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/screen/select/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env.screen.Settle()

	rec = env.do(t, http.MethodGet, "/api/screen", "")
	st := decode[screen.State](t, rec)
	require.NotNil(t, st.Route)
	assert.False(t, st.RoutePending)
	assert.Equal(t, "5 km", st.Route.DistanceText)

	scene := env.hub.Snapshot()
	require.NotNil(t, scene.Route)
	require.NotNil(t, scene.Card)
	assert.Equal(t, 0, scene.Card.Index)
}

func TestServer_Navigate(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/screen/navigate/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[NavigateResponse](t, rec)
	assert.True(t, strings.HasPrefix(got.URL, "https://www.google.com/maps/dir/?api=1"), got.URL)

	rec = env.do(t, http.MethodPost, "/api/screen/navigate/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Booking(t *testing.T) {
	t.Run("Contactable", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodGet, "/api/booking", "")
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[booking.Page](t, rec)
		assert.Equal(t, "Kasage Homestay", page.Name)
		assert.NotEmpty(t, page.Amenities)

		rec = env.do(t, http.MethodPost, "/api/booking/book", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(decode[LinkResponse](t, rec).URL, "https://wa.me/9199074233664?text="))

		rec = env.do(t, http.MethodPost, "/api/booking/call", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "tel:+9199074233664", decode[LinkResponse](t, rec).URL)
	})

	t.Run("NoPhone", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.Booking.Phone = "" })

		rec := env.do(t, http.MethodPost, "/api/booking/book", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		rec = env.do(t, http.MethodPost, "/api/booking/call", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServer_Stats(t *testing.T) {
	env := newTestEnv(t, nil)
	env.tracker.Track(screen.TrackerProvider, tracker.Success)
	env.tracker.Track(screen.TrackerProvider, tracker.Stale)

	rec := env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[StatsResponse](t, rec)
	p, ok := got.Providers[screen.TrackerProvider]
	require.True(t, ok)
	assert.Equal(t, int64(1), p.APISuccess)
	assert.Equal(t, int64(1), p.Stale)
	assert.Equal(t, 0, got.Diagnostics.MapClients)
	assert.Positive(t, got.Diagnostics.Goroutines)
}

func TestServer_SPA(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		path       string
		wantStatus int
		contains   string
	}{
		{"/", http.StatusOK, `id="map"`},
		{"/booking", http.StatusOK, `id="booking-screen"`},
		{"/app.js", http.StatusOK, "marker_click"},
		{"/api/missing", http.StatusNotFound, ""},
		{"/images/missing.jpg", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestServer_Shutdown(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/shutdown", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-env.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown func was not called")
	}
}
