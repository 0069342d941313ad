// Package mapsurface owns the lifecycle of the provider map instance and its markers.
package mapsurface

import (
	"context"

	"kasage/pkg/config"
	"kasage/pkg/model"
)

// MarkerHandle is an opaque reference to a marker created on a Surface.
type MarkerHandle string

// MarkerKind distinguishes the three marker families on the map.
type MarkerKind string

const (
	KindHome       MarkerKind = "home"
	KindAttraction MarkerKind = "attraction"
	KindUser       MarkerKind = "user"
)

// MapOptions configures the map instance at creation.
type MapOptions struct {
	Container  string       `json:"container"`
	Center     model.LatLng `json:"center"`
	Zoom       int          `json:"zoom"`
	HideChrome bool         `json:"hide_chrome"`
	Styles     []StyleRule  `json:"styles,omitempty"`
}

// StyleRule hides or restyles a class of basemap features.
type StyleRule struct {
	FeatureType string `json:"feature_type"`
	ElementType string `json:"element_type,omitempty"`
	Visibility  string `json:"visibility"`
}

// DefaultStyles hides the provider's own point-of-interest labels and the transit layer.
var DefaultStyles = []StyleRule{
	{FeatureType: "poi", ElementType: "labels", Visibility: "off"},
	{FeatureType: "transit", Visibility: "off"},
}

// MarkerOptions describes a marker to create.
type MarkerOptions struct {
	Kind     MarkerKind   `json:"kind"`
	ID       int          `json:"id,omitempty"`
	Position model.LatLng `json:"position"`
	Title    string       `json:"title"`
	Label    string       `json:"label,omitempty"`
	Color    string       `json:"color,omitempty"`
}

// MarkerState is the mutable presentation of a marker.
type MarkerState struct {
	Visible    bool `json:"visible"`
	Emphasized bool `json:"emphasized"`
	Bounce     bool `json:"bounce"`
}

// Camera is a viewport target. A nil Padding keeps the provider default.
type Camera struct {
	Center  model.LatLng    `json:"center"`
	Zoom    int             `json:"zoom"`
	Padding *config.Padding `json:"padding,omitempty"`
}

// Surface is the rendering side of the map provider.
type Surface interface {
	// HasContainer reports whether the named container element is present.
	HasContainer(container string) bool
	CreateMap(ctx context.Context, opts MapOptions) error
	CreateMarker(opts MarkerOptions) (MarkerHandle, error)
	UpdateMarker(h MarkerHandle, st MarkerState) error
	RemoveMarker(h MarkerHandle) error
	SetCamera(c Camera) error
	FitBounds(b model.Bounds, pad config.Padding) error
	RenderRoute(r *model.Route) error
	ClearRoute() error
	// OnAuthFailure registers fn for provider credential failures and returns its unsubscribe func.
	OnAuthFailure(fn func(message string)) (unsubscribe func())
	// OnMarkerClick registers fn for marker clicks and returns its unsubscribe func.
	OnMarkerClick(fn func(id int)) (unsubscribe func())
}

// Router computes routes between two points.
type Router interface {
	Route(ctx context.Context, origin, dest model.LatLng, mode string) (*model.Route, error)
}
