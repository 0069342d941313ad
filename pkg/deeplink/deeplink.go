// Package deeplink builds the outbound links that hand off to the dialer,
// the messaging app and the provider's turn-by-turn navigation.
package deeplink

import (
	"log/slog"
	"net/url"
	"strings"

	"kasage/pkg/model"
)

const (
	messageBase    = "https://wa.me/"
	directionsBase = "https://www.google.com/maps/dir/"
)

// Opener opens a link in a new browsing context. It reports nothing back.
type Opener interface {
	Open(link string)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(link string)

func (f OpenerFunc) Open(link string) { f(link) }

// Dial returns a tel: link for the phone number.
func Dial(phone string) string {
	return "tel:+" + digits(phone)
}

// Message returns a messaging link with a pre-filled text.
func Message(phone, text string) string {
	u := messageBase + digits(phone)
	if text != "" {
		u += "?text=" + url.QueryEscape(text)
	}
	return u
}

// Directions returns a turn-by-turn link to dest. A nil origin lets the
// provider app use the device position.
func Directions(dest model.LatLng, origin *model.LatLng) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("destination", dest.String())
	if origin != nil {
		q.Set("origin", origin.String())
	}
	q.Set("travelmode", "driving")
	return directionsBase + "?" + q.Encode()
}

// Launch opens link through o and logs the hand-off.
func Launch(o Opener, kind, link string) {
	if o == nil || link == "" {
		return
	}
	slog.Info("Opening external link", "kind", kind)
	o.Open(link)
}

func digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
