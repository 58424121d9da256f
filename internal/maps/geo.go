// README: Geographic helpers and the service region box.
package maps

import (
	"math"

	"github.com/twpayne/go-geom"

	"keralaride/internal/config"
	"keralaride/internal/types"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Region is the service area: a lng/lat bounding box inside one country.
type Region struct {
	Country string
	bounds  *geom.Bounds
}

func NewRegion(cfg config.RegionConfig) Region {
	return Region{
		Country: cfg.Country,
		bounds:  geom.NewBounds(geom.XY).Set(cfg.MinLng, cfg.MinLat, cfg.MaxLng, cfg.MaxLat),
	}
}

func (r Region) Center() types.Point {
	return types.Point{
		Lat: (r.bounds.Min(1) + r.bounds.Max(1)) / 2,
		Lng: (r.bounds.Min(0) + r.bounds.Max(0)) / 2,
	}
}

// RadiusMeters is the distance from the centre to the north-east corner, so
// a circle with this radius covers the whole box.
func (r Region) RadiusMeters() uint {
	c := r.Center()
	km := haversineKm(c.Lat, c.Lng, r.bounds.Max(1), r.bounds.Max(0))
	return uint(math.Ceil(km * 1000))
}

func (r Region) Contains(p types.Point) bool {
	return r.bounds.OverlapsPoint(geom.XY, geom.Coord{p.Lng, p.Lat})
}

// boundsOf returns the bounding box of points, or false when points is empty.
func boundsOf(points []types.Point) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b := geom.NewBounds(geom.XY)
	for _, p := range points {
		b.Extend(geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat}))
	}
	return Bounds{
		NorthEast: types.Point{Lat: b.Max(1), Lng: b.Max(0)},
		SouthWest: types.Point{Lat: b.Min(1), Lng: b.Min(0)},
	}, true
}
