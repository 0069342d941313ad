package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kasage/pkg/attraction"
	"kasage/pkg/geo"
	"kasage/pkg/model"
)

// Router is the route computation used by the directions probe.
type Router interface {
	Route(ctx context.Context, origin, dest model.LatLng, mode string) (*model.Route, error)
}

// MapsKey checks that a provider credential is configured.
func MapsKey(key string) CheckFunc {
	return func(context.Context) error {
		if strings.TrimSpace(key) == "" {
			return errors.New("no maps api key: set maps.api_key or GOOGLE_MAPS_API_KEY")
		}
		return nil
	}
}

// Catalog checks that the catalog is non-empty and that no attraction sits on top of the homestay.
func Catalog(c *attraction.Catalog, home model.LatLng) CheckFunc {
	return func(context.Context) error {
		if c == nil || c.Len() == 0 {
			return errors.New("attraction catalog is empty")
		}
		for _, a := range c.List() {
			if geo.Distance(a.Location, home) < 50 {
				return fmt.Errorf("attraction %d (%s) overlaps the homestay marker", a.ID, a.Name)
			}
		}
		return nil
	}
}

// Directions performs one live route computation from home to dest.
func Directions(r Router, home, dest model.LatLng, mode string) CheckFunc {
	return func(ctx context.Context) error {
		route, err := r.Route(ctx, home, dest, mode)
		if err != nil {
			return err
		}
		if len(route.Path) < 2 {
			return errors.New("route has no geometry")
		}
		return nil
	}
}
