package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-polyline"
	"googlemaps.github.io/maps"

	"keralaride/internal/metrics"
	"keralaride/internal/types"
)

// maxWaypoints bounds the sampled points stored with a booking.
const maxWaypoints = 10

// DirectionsClient is the subset of *maps.Client used for routing.
type DirectionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// RouteService requests driving alternatives between resolved places.
type RouteService struct {
	client DirectionsClient
	region Region
}

func NewRouteService(client DirectionsClient, region Region) *RouteService {
	return &RouteService{client: client, region: region}
}

// Plan returns every driving alternative between two place ids in provider
// order. The first route is the default selection.
func (s *RouteService) Plan(ctx context.Context, originID, destinationID string) ([]Route, error) {
	if originID == "" || destinationID == "" {
		return nil, &RoutingError{Status: "INVALID_REQUEST", Err: errors.New("origin and destination are required")}
	}

	r := &maps.DirectionsRequest{
		Origin:       "place_id:" + originID,
		Destination:  "place_id:" + destinationID,
		Mode:         maps.TravelModeDriving,
		Alternatives: true,
		Region:       s.region.Country,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		rerr := &RoutingError{Status: providerStatus(err), Err: err}
		metrics.RoutingFailures.WithLabelValues(rerr.Status).Inc()
		logrus.WithError(err).WithFields(logrus.Fields{
			"origin":      originID,
			"destination": destinationID,
			"status":      rerr.Status,
		}).Warn("directions request failed")
		return nil, rerr
	}
	if len(routes) == 0 {
		metrics.RoutingFailures.WithLabelValues("ZERO_RESULTS").Inc()
		return nil, &RoutingError{Status: "ZERO_RESULTS"}
	}

	out := make([]Route, 0, len(routes))
	for _, route := range routes {
		out = append(out, s.toRoute(route))
	}
	return out, nil
}

func (s *RouteService) toRoute(r maps.Route) Route {
	route := Route{
		Summary:  r.Summary,
		Polyline: r.OverviewPolyline.Points,
		Warnings: r.Warnings,
		Bounds: Bounds{
			NorthEast: types.Point{Lat: r.Bounds.NorthEast.Lat, Lng: r.Bounds.NorthEast.Lng},
			SouthWest: types.Point{Lat: r.Bounds.SouthWest.Lat, Lng: r.Bounds.SouthWest.Lng},
		},
	}

	for _, l := range r.Legs {
		if l == nil {
			continue
		}
		leg := Leg{
			Distance:      Measure{Text: l.Distance.HumanReadable, Value: l.Distance.Meters},
			Duration:      durationMeasure(l.Duration),
			StartLocation: types.Point{Lat: l.StartLocation.Lat, Lng: l.StartLocation.Lng},
			EndLocation:   types.Point{Lat: l.EndLocation.Lat, Lng: l.EndLocation.Lng},
			StartAddress:  l.StartAddress,
			EndAddress:    l.EndAddress,
		}
		for _, st := range l.Steps {
			if st == nil {
				continue
			}
			leg.Steps = append(leg.Steps, Step{
				Instructions:  st.HTMLInstructions,
				Distance:      Measure{Text: st.Distance.HumanReadable, Value: st.Distance.Meters},
				Duration:      durationMeasure(st.Duration),
				StartLocation: types.Point{Lat: st.StartLocation.Lat, Lng: st.StartLocation.Lng},
				EndLocation:   types.Point{Lat: st.EndLocation.Lat, Lng: st.EndLocation.Lng},
			})
		}
		route.Legs = append(route.Legs, leg)
	}

	points, err := decodePolyline(route.Polyline)
	if err != nil {
		logrus.WithError(err).Debug("overview polyline not decodable")
	}
	route.Waypoints = sample(points, maxWaypoints)

	if route.Bounds == (Bounds{}) {
		if b, ok := boundsOf(points); ok {
			route.Bounds = b
		}
	}

	if len(route.Legs) > 0 {
		first, last := route.Legs[0], route.Legs[len(route.Legs)-1]
		route.WithinRegion = s.region.Contains(first.StartLocation) && s.region.Contains(last.EndLocation)
	}
	return route
}

func decodePolyline(encoded string) ([]types.Point, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	points := make([]types.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		points = append(points, types.Point{Lat: c[0], Lng: c[1]})
	}
	return points, nil
}

// sample picks at most n evenly spaced points, always keeping both ends.
func sample(points []types.Point, n int) []types.Point {
	if len(points) <= n || n < 2 {
		return points
	}
	out := make([]types.Point, 0, n)
	step := float64(len(points)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, points[int(float64(i)*step+0.5)])
	}
	return out
}

// providerStatus extracts the status code from "maps: STATUS - message".
func providerStatus(err error) string {
	if errors.Is(err, context.Canceled) {
		return "CANCELLED"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, "maps: "); ok {
		status, _, _ := strings.Cut(rest, " ")
		if status != "" {
			return status
		}
	}
	return "REQUEST_FAILED"
}

func durationMeasure(d time.Duration) Measure {
	return Measure{Text: formatDuration(d), Value: int(d.Round(time.Second) / time.Second)}
}

// formatDuration renders d the way the provider writes durations, e.g. "2 hours 5 mins".
func formatDuration(d time.Duration) string {
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins < 1 {
		return "1 min"
	}
	h, m := mins/60, mins%60
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case h == 0:
		return plural(m, "min")
	case m == 0:
		return plural(h, "hour")
	default:
		return plural(h, "hour") + " " + plural(m, "min")
	}
}
