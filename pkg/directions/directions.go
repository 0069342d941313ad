// Package directions computes driving routes with the Google Directions web service.
package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"

	"github.com/twpayne/go-polyline"
	"golang.org/x/net/html"

	"kasage/pkg/geo"
	"kasage/pkg/model"
)

// Provider status codes.
const (
	StatusOK             = "OK"
	StatusNotFound       = "NOT_FOUND"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusUnknown        = "UNKNOWN_ERROR"
)

var (
	// ErrNoRoute means the provider found no route between the points.
	ErrNoRoute = errors.New("no route found")
	// ErrDenied means the credential is missing, invalid or the API is not enabled.
	ErrDenied = errors.New("directions request denied")
	// ErrMissingKey is returned before any network call when no credential is configured.
	ErrMissingKey = errors.New("maps api key not configured")
)

// StatusError carries a non-OK provider status.
type StatusError struct {
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("directions: %s: %s", e.Status, e.Message)
	}
	return "directions: " + e.Status
}

// Is maps provider statuses onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNoRoute:
		return e.Status == StatusZeroResults || e.Status == StatusNotFound
	case ErrDenied:
		return e.Status == StatusRequestDenied
	}
	return false
}

// Status extracts the provider status code from an error, StatusOK for nil.
func Status(err error) string {
	if err == nil {
		return StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	if errors.Is(err, ErrMissingKey) {
		return StatusRequestDenied
	}
	return StatusUnknown
}

// Fetcher is the subset of request.Client used here.
type Fetcher interface {
	Get(ctx context.Context, u, cacheKey string) ([]byte, error)
	Invalidate(ctx context.Context, cacheKey string)
}

// Client implements mapsurface.Router on top of the Directions API.
type Client struct {
	fetch    Fetcher
	baseURL  string
	apiKey   string
	language string
}

// NewClient creates a Directions client.
func NewClient(f Fetcher, baseURL, apiKey, language string) *Client {
	return &Client{fetch: f, baseURL: baseURL, apiKey: apiKey, language: language}
}

type response struct {
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	Routes       []apiRoute `json:"routes"`
}

type apiRoute struct {
	Summary string `json:"summary"`
	Bounds  struct {
		Northeast apiLatLng `json:"northeast"`
		Southwest apiLatLng `json:"southwest"`
	} `json:"bounds"`
	Legs     []apiLeg `json:"legs"`
	Overview struct {
		Points string `json:"points"`
	} `json:"overview_polyline"`
}

type apiLeg struct {
	Distance apiValue  `json:"distance"`
	Duration apiValue  `json:"duration"`
	Steps    []apiStep `json:"steps"`
}

type apiStep struct {
	Instructions string   `json:"html_instructions"`
	Maneuver     string   `json:"maneuver"`
	Distance     apiValue `json:"distance"`
	Duration     apiValue `json:"duration"`
}

type apiValue struct {
	Value int    `json:"value"`
	Text  string `json:"text"`
}

type apiLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p apiLatLng) model() model.LatLng { return model.LatLng{Lat: p.Lat, Lng: p.Lng} }

// Route computes the best route between origin and destination.
func (c *Client) Route(ctx context.Context, origin, dest model.LatLng, mode string) (*model.Route, error) {
	if c.apiKey == "" {
		return nil, ErrMissingKey
	}
	if mode == "" {
		mode = "driving"
	}

	params := url.Values{}
	params.Set("origin", origin.String())
	params.Set("destination", dest.String())
	params.Set("mode", mode)
	params.Set("units", "metric")
	if c.language != "" {
		params.Set("language", c.language)
	}
	params.Set("key", c.apiKey)
	u := c.baseURL + "?" + params.Encode()

	cacheKey := fmt.Sprintf("directions:%s:%s:%s", mode, origin, dest)
	body, err := c.fetch.Get(ctx, u, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		c.fetch.Invalidate(ctx, cacheKey)
		return nil, fmt.Errorf("failed to decode directions response: %w", err)
	}
	if resp.Status != StatusOK {
		// Only OK bodies may be served from cache.
		c.fetch.Invalidate(ctx, cacheKey)
		return nil, &StatusError{Status: resp.Status, Message: resp.ErrorMessage}
	}
	if len(resp.Routes) == 0 {
		c.fetch.Invalidate(ctx, cacheKey)
		return nil, &StatusError{Status: StatusZeroResults}
	}

	route, err := convert(resp.Routes[0], origin, dest, mode)
	if err != nil {
		c.fetch.Invalidate(ctx, cacheKey)
		return nil, err
	}
	slog.Debug("Route computed", "mode", mode, "distance_m", route.DistanceMeters, "points", len(route.Path))
	return route, nil
}

func convert(r apiRoute, origin, dest model.LatLng, mode string) (*model.Route, error) {
	path, err := DecodePolyline(r.Overview.Points)
	if err != nil {
		return nil, err
	}

	route := &model.Route{
		Origin:      origin,
		Destination: dest,
		Mode:        mode,
		Path:        path,
		Summary:     r.Summary,
		Bounds: model.Bounds{
			NorthEast: r.Bounds.Northeast.model(),
			SouthWest: r.Bounds.Southwest.model(),
		},
	}
	if route.Bounds == (model.Bounds{}) {
		b := geo.BoundsOf([]model.LatLng{origin, dest})
		for _, p := range path {
			b = geo.Extend(b, p)
		}
		route.Bounds = b
	}

	for _, leg := range r.Legs {
		route.DistanceMeters += leg.Distance.Value
		route.DurationSeconds += leg.Duration.Value
		for _, s := range leg.Steps {
			route.Steps = append(route.Steps, model.Step{
				Instruction:     PlainText(s.Instructions),
				Maneuver:        s.Maneuver,
				DistanceMeters:  s.Distance.Value,
				DurationSeconds: s.Duration.Value,
			})
		}
	}

	// Legs without a distance fall back to the length of the drawn line.
	if route.DistanceMeters == 0 {
		route.DistanceMeters = int(math.Round(geo.PathLength(path)))
	}

	if len(r.Legs) == 1 {
		route.DistanceText = r.Legs[0].Distance.Text
		route.DurationText = r.Legs[0].Duration.Text
	}
	if route.DistanceText == "" {
		route.DistanceText = geo.FormatDistance(float64(route.DistanceMeters))
	}
	if route.DurationText == "" {
		route.DurationText = geo.FormatDuration(route.DurationSeconds)
	}
	return route, nil
}

// DecodePolyline decodes an encoded polyline (precision 5) into coordinates.
func DecodePolyline(encoded string) ([]model.LatLng, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid polyline: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("invalid polyline: %d trailing bytes", len(rest))
	}
	path := make([]model.LatLng, 0, len(coords))
	for _, c := range coords {
		path = append(path, model.LatLng{Lat: c[0], Lng: c[1]})
	}
	return path, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(path []model.LatLng) string {
	coords := make([][]float64, 0, len(path))
	for _, p := range path {
		coords = append(coords, []float64{p.Lat, p.Lng})
	}
	return string(polyline.EncodeCoords(coords))
}

// PlainText strips the markup of a turn instruction ("Turn <b>left</b>") and
// separates block elements with a single space.
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var parts []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(strings.Join(parts, "")), " ")
		case html.TextToken:
			parts = append(parts, string(z.Text()))
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "div" || string(name) == "br" {
				parts = append(parts, " ")
			}
		}
	}
}
