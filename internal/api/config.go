package api

import (
	"net/http"

	"kasage/pkg/config"
	"kasage/pkg/model"
	"kasage/pkg/version"
)

// ConfigHandler serves the public part of the configuration to the browser.
type ConfigHandler struct {
	cfg       *config.Config
	container string
}

// NewConfigHandler creates a new ConfigHandler. container is the element id the map mounts into.
func NewConfigHandler(cfg *config.Config, container string) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, container: container}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	MapsAPIKey   string         `json:"maps_api_key"`
	Language     string         `json:"language"`
	Container    string         `json:"container"`
	Mode         string         `json:"mode"`
	DefaultZoom  int            `json:"default_zoom"`
	SelectZoom   int            `json:"select_zoom"`
	LocateZoom   int            `json:"locate_zoom"`
	RoutePadding config.Padding `json:"route_padding"`
	HomeName     string         `json:"home_name"`
	HomeLocality string         `json:"home_locality"`
	Home         model.LatLng   `json:"home"`
	Version      string         `json:"version"`
}

// HandleConfig returns the client configuration.
// The maps key is a browser key and is restricted by referrer at the provider.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	m := h.cfg.Maps
	writeJSON(w, http.StatusOK, ConfigResponse{
		MapsAPIKey:   m.APIKey,
		Language:     m.Language,
		Container:    h.container,
		Mode:         m.Mode,
		DefaultZoom:  m.DefaultZoom,
		SelectZoom:   m.SelectZoom,
		LocateZoom:   m.LocateZoom,
		RoutePadding: m.RoutePadding,
		HomeName:     h.cfg.Home.Name,
		HomeLocality: h.cfg.Home.Locality,
		Home:         h.cfg.Home.Location,
		Version:      version.Version,
	})
}
