package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"kasage/pkg/geolocation"
	"kasage/pkg/mapsurface"
	"kasage/pkg/screen"
)

// ScreenHandler exposes the attraction map screen over HTTP.
type ScreenHandler struct {
	screen *screen.Screen
}

// NewScreenHandler creates a new ScreenHandler.
func NewScreenHandler(s *screen.Screen) *ScreenHandler {
	return &ScreenHandler{screen: s}
}

// FilterRequest is the body of POST /api/screen/filter.
type FilterRequest struct {
	Category string `json:"category"`
}

// NavigateResponse carries the directions link that was opened.
type NavigateResponse struct {
	URL string `json:"url"`
}

// HandleState returns the current screen state.
func (h *ScreenHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.screen.State())
}

// HandleSelect selects the attraction named by the {id} path value.
func (h *ScreenHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.respond(w, h.screen.Select(id))
}

// HandleRecenter returns the map to the home overview.
func (h *ScreenHandler) HandleRecenter(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.screen.Recenter())
}

// HandleFilter changes the active category filter.
func (h *ScreenHandler) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	h.respond(w, h.screen.ChangeFilter(req.Category))
}

// HandleLocate asks the browser for a position fix and places the user marker.
func (h *ScreenHandler) HandleLocate(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.screen.LocateMe(r.Context()))
}

// HandleNavigate opens turn-by-turn directions to the {id} attraction.
func (h *ScreenHandler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	link, err := h.screen.Navigate(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, NavigateResponse{URL: link})
}

func (h *ScreenHandler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		status := statusFor(err)
		if status == http.StatusUnprocessableEntity {
			err = errors.New(geolocation.Message(err))
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, h.screen.State())
}

func pathID(r *http.Request) (int, error) {
	raw := r.PathValue("id")
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid attraction id %q", raw)
	}
	return id, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, screen.ErrUnknownAttraction):
		return http.StatusNotFound
	case errors.Is(err, screen.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, screen.ErrNotMounted), errors.Is(err, mapsurface.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, screen.ErrMapUnavailable), errors.Is(err, mapsurface.ErrNoContainer):
		return http.StatusServiceUnavailable
	case errors.Is(err, geolocation.ErrDenied), errors.Is(err, geolocation.ErrUnavailable),
		errors.Is(err, geolocation.ErrTimeout), errors.Is(err, geolocation.ErrLowAccuracy):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
