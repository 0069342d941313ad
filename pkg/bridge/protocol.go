// Package bridge drives the browser-side map SDK over a websocket. The hub keeps
// the current scene, replays it to every new client and streams incremental
// commands; UI events flow back the other way.
package bridge

import (
	"encoding/json"

	"kasage/pkg/config"
	"kasage/pkg/mapsurface"
	"kasage/pkg/model"
	"kasage/pkg/screen"
)

// Outbound command types.
const (
	CmdSnapshot     = "snapshot"
	CmdMap          = "map"
	CmdMarkerAdd    = "marker_add"
	CmdMarkerUpdate = "marker_update"
	CmdMarkerRemove = "marker_remove"
	CmdCamera       = "camera"
	CmdFit          = "fit"
	CmdRoute        = "route"
	CmdRouteClear   = "route_clear"
	CmdScrollCard   = "scroll_card"
	CmdScrollStart  = "scroll_start"
	CmdAlert        = "alert"
	CmdOverlay      = "overlay"
	CmdState        = "state"
	CmdOpen         = "open"
	CmdLocate       = "locate"
)

// Inbound event types.
const (
	EvtMarkerClick = "marker_click"
	EvtCardTap     = "card_tap"
	EvtAuthFailure = "auth_failure"
	EvtGeolocation = "geolocation"
	EvtRecenter    = "recenter"
	EvtFilter      = "filter"
	EvtLocate      = "locate"
	EvtNavigate    = "navigate"
)

// Geolocation error codes sent by the browser.
const (
	GeoDenied      = "denied"
	GeoUnavailable = "unavailable"
	GeoTimeout     = "timeout"
)

// Command is one frame sent to the browser.
type Command struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Event is one frame received from the browser.
type Event struct {
	Type      string  `json:"type"`
	ID        int     `json:"id,omitempty"`
	Category  string  `json:"category,omitempty"`
	Message   string  `json:"message,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lng       float64 `json:"lng,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Marker is a marker as known to the browser.
type Marker struct {
	Handle mapsurface.MarkerHandle  `json:"handle"`
	Opts   mapsurface.MarkerOptions `json:"options"`
	State  mapsurface.MarkerState   `json:"state"`
}

// Fit is a viewport fit request.
type Fit struct {
	Bounds  model.Bounds   `json:"bounds"`
	Padding config.Padding `json:"padding"`
}

// RoutePayload is the drawn route. The path travels as an encoded polyline.
type RoutePayload struct {
	Polyline     string       `json:"polyline"`
	Bounds       model.Bounds `json:"bounds"`
	Destination  model.LatLng `json:"destination"`
	DistanceText string       `json:"distance_text"`
	DurationText string       `json:"duration_text"`
}

// ScrollPayload asks the card list to bring a card into view.
type ScrollPayload struct {
	Index    int    `json:"index"`
	Behavior string `json:"behavior"`
	Inline   string `json:"inline"`
}

// LocatePayload asks the browser for a one-shot position.
type LocatePayload struct {
	RequestID    string `json:"request_id"`
	HighAccuracy bool   `json:"high_accuracy"`
	TimeoutMS    int64  `json:"timeout_ms"`
	MaxAgeMS     int64  `json:"maximum_age_ms"`
}

// Scene is everything a freshly connected browser needs to render the screen.
type Scene struct {
	Map     *mapsurface.MapOptions `json:"map"`
	Markers []Marker               `json:"markers"`
	Camera  *mapsurface.Camera     `json:"camera"`
	Fit     *Fit                   `json:"fit"`
	Route   *RoutePayload          `json:"route"`
	Card    *ScrollPayload         `json:"card"`
	Overlay string                 `json:"overlay,omitempty"`
	State   *screen.State          `json:"state"`
}

func encode(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}
