package api

import (
	"errors"
	"net/http"

	"kasage/pkg/booking"
	"kasage/pkg/deeplink"
)

var errNoContact = errors.New("no booking phone configured")

// BookingHandler serves the booking screen and its contact hand-offs.
type BookingHandler struct {
	page   *booking.Page
	opener deeplink.Opener
}

// NewBookingHandler creates a new BookingHandler. opener may be nil; the link is still returned.
func NewBookingHandler(p *booking.Page, o deeplink.Opener) *BookingHandler {
	return &BookingHandler{page: p, opener: o}
}

// LinkResponse carries the external link that was opened.
type LinkResponse struct {
	URL string `json:"url"`
}

// HandlePage returns the booking page content.
func (h *BookingHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.page)
}

// HandleBook opens the messaging app with the greeting pre-filled.
func (h *BookingHandler) HandleBook(w http.ResponseWriter, r *http.Request) {
	if !h.page.Contactable() {
		writeError(w, http.StatusServiceUnavailable, errNoContact)
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{URL: h.page.Book(h.opener)})
}

// HandleCall opens the phone dialer.
func (h *BookingHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	if !h.page.Contactable() {
		writeError(w, http.StatusServiceUnavailable, errNoContact)
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{URL: h.page.Call(h.opener)})
}
