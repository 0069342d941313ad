// Package booking builds the booking screen and its contact hand-offs.
package booking

import (
	"strings"

	"kasage/pkg/config"
	"kasage/pkg/deeplink"
	"kasage/pkg/model"
)

// Amenity is one item of the amenities grid.
type Amenity struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

// Page is the static content of the booking screen.
type Page struct {
	Name        string       `json:"name"`
	Locality    string       `json:"locality"`
	Location    model.LatLng `json:"location"`
	Rating      float64      `json:"rating"`
	Reviews     int          `json:"reviews"`
	Price       string       `json:"price"`
	PriceUnit   string       `json:"price_unit"`
	Description string       `json:"description"`
	Photos      []string     `json:"photos"`
	Amenities   []Amenity    `json:"amenities"`

	BookLink string `json:"book_link"`
	CallLink string `json:"call_link"`
	MapLink  string `json:"map_link"`
}

var icons = map[string]string{
	"wi-fi":   "wifi",
	"wifi":    "wifi",
	"parking": "car",
	"food":    "utensils",
	"coffee":  "coffee",
}

// IconFor picks an icon name for an amenity label.
func IconFor(label string) string {
	l := strings.ToLower(label)
	for key, icon := range icons {
		if strings.Contains(l, key) {
			return icon
		}
	}
	return "star"
}

// NewPage builds the booking page from the home and booking config sections.
func NewPage(home config.HomeConfig, cfg config.BookingConfig) *Page {
	p := &Page{
		Name:        home.Name,
		Locality:    home.Locality,
		Location:    home.Location,
		Rating:      cfg.Rating,
		Reviews:     cfg.Reviews,
		Price:       cfg.Price,
		PriceUnit:   "night",
		Description: cfg.Description,
		Photos:      append([]string(nil), cfg.Photos...),
		MapLink:     deeplink.Directions(home.Location, nil),
	}
	for _, a := range cfg.Amenities {
		p.Amenities = append(p.Amenities, Amenity{Label: a, Icon: IconFor(a)})
	}
	if cfg.Phone != "" {
		p.BookLink = deeplink.Message(cfg.Phone, cfg.Greeting)
		p.CallLink = deeplink.Dial(cfg.Phone)
	}
	return p
}

// Contactable reports whether a contact number is configured.
func (p *Page) Contactable() bool {
	return p.BookLink != ""
}

// Book hands off to the messaging app with the greeting pre-filled.
func (p *Page) Book(o deeplink.Opener) string {
	deeplink.Launch(o, "book", p.BookLink)
	return p.BookLink
}

// Call hands off to the phone dialer.
func (p *Page) Call(o deeplink.Opener) string {
	deeplink.Launch(o, "call", p.CallLink)
	return p.CallLink
}
