package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"kasage/pkg/model"
)

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 model.LatLng) float64 {
	return orbgeo.DistanceHaversine(p1.Point(), p2.Point())
}

// BoundsOf returns the bounding box of a path. An empty path yields a zero box.
func BoundsOf(path []model.LatLng) model.Bounds {
	if len(path) == 0 {
		return model.Bounds{}
	}
	mp := make(orb.MultiPoint, 0, len(path))
	for _, p := range path {
		mp = append(mp, p.Point())
	}
	b := mp.Bound()
	return model.Bounds{
		NorthEast: model.FromPoint(b.Max),
		SouthWest: model.FromPoint(b.Min),
	}
}

// Extend grows the bounds so they also contain p.
func Extend(b model.Bounds, p model.LatLng) model.Bounds {
	ob := b.Bound().Extend(p.Point())
	return model.Bounds{
		NorthEast: model.FromPoint(ob.Max),
		SouthWest: model.FromPoint(ob.Min),
	}
}

// PathLength sums the Haversine length of a path in meters.
func PathLength(path []model.LatLng) float64 {
	if len(path) < 2 {
		return 0
	}
	ls := make(orb.LineString, 0, len(path))
	for _, p := range path {
		ls = append(ls, p.Point())
	}
	return orbgeo.LengthHaversine(ls)
}

// FormatDistance renders meters the way the card list shows distances ("850 m", "5.2 km").
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatDuration renders seconds as "N min" or "H h M min".
func FormatDuration(seconds int) string {
	mins := int(math.Round(float64(seconds) / 60))
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	return fmt.Sprintf("%d h %d min", mins/60, mins%60)
}
