package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

// LatLng is a WGS-84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Point converts the coordinate to an orb point (lon, lat order).
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromPoint converts an orb point back to a LatLng.
func FromPoint(p orb.Point) LatLng {
	return LatLng{Lat: p.Lat(), Lng: p.Lon()}
}

// Valid reports whether the coordinate lies in the WGS-84 range.
func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// String formats the coordinate the way the Directions API and map links expect it.
func (p LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Attraction is a point of interest near the homestay. Attractions are compiled
// into the binary and never mutated at runtime.
type Attraction struct {
	ID       int    `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Location LatLng `json:"location" yaml:"location"`
	Category string `json:"category" yaml:"category"` // e.g. "waterfall", "temple"

	// Static display hints. They are not reconciled with the live route.
	Distance   string `json:"distance" yaml:"distance"`
	TravelTime string `json:"travel_time" yaml:"travel_time"`

	// Presentation only
	Image string `json:"image" yaml:"image"`
	Color string `json:"color" yaml:"color"`
}

// Bounds is the bounding box of a route.
type Bounds struct {
	NorthEast LatLng `json:"north_east"`
	SouthWest LatLng `json:"south_west"`
}

// Bound converts the box to an orb.Bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: b.SouthWest.Point(), Max: b.NorthEast.Point()}
}

// Step is one turn-by-turn instruction of a route.
type Step struct {
	Instruction     string `json:"instruction"`
	Maneuver        string `json:"maneuver,omitempty"`
	DistanceMeters  int    `json:"distance_meters"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Route is the result of a route computation between two points.
type Route struct {
	Origin      LatLng   `json:"origin"`
	Destination LatLng   `json:"destination"`
	Mode        string   `json:"mode"`
	Path        []LatLng `json:"path"`
	Bounds      Bounds   `json:"bounds"`
	Summary     string   `json:"summary,omitempty"`

	// Live values from the routing provider
	DistanceMeters  int    `json:"distance_meters"`
	DurationSeconds int    `json:"duration_seconds"`
	DistanceText    string `json:"distance_text"`
	DurationText    string `json:"duration_text"`

	Steps []Step `json:"steps,omitempty"`
}
