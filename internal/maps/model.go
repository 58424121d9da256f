// README: Place and route shapes returned by the maps services.
package maps

import (
	"errors"
	"fmt"

	"keralaride/internal/types"
)

// Place is a geocoded location candidate. Autocomplete results carry no
// coordinates; they are filled in once a route has been planned.
type Place struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
}

// Measure mirrors the provider's {text, value} pairs. Distance values are
// metres, duration values are seconds.
type Measure struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type Step struct {
	Instructions  string      `json:"instructions"`
	Distance      Measure     `json:"distance"`
	Duration      Measure     `json:"duration"`
	StartLocation types.Point `json:"startLocation"`
	EndLocation   types.Point `json:"endLocation"`
	Maneuver      string      `json:"maneuver,omitempty"`
}

type Leg struct {
	Distance      Measure     `json:"distance"`
	Duration      Measure     `json:"duration"`
	StartLocation types.Point `json:"startLocation"`
	EndLocation   types.Point `json:"endLocation"`
	StartAddress  string      `json:"startAddress"`
	EndAddress    string      `json:"endAddress"`
	Steps         []Step      `json:"steps"`
}

type Bounds struct {
	NorthEast types.Point `json:"northeast"`
	SouthWest types.Point `json:"southwest"`
}

// Route is one driving alternative between two places.
type Route struct {
	Summary      string        `json:"summary"`
	Legs         []Leg         `json:"legs"`
	Polyline     string        `json:"polyline"`
	Bounds       Bounds        `json:"bounds"`
	Waypoints    []types.Point `json:"waypoints"`
	WithinRegion bool          `json:"withinRegion"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// FirstLeg returns the first leg, or a zero Leg for a malformed route.
func (r Route) FirstLeg() Leg {
	if len(r.Legs) == 0 {
		return Leg{}
	}
	return r.Legs[0]
}

// ErrNoPlace is returned when a place id is not among the current suggestions.
var ErrNoPlace = errors.New("place not found")

// RoutingError carries the provider status of a failed directions request.
type RoutingError struct {
	Status string
	Err    error
}

func (e *RoutingError) Error() string {
	if e.Err == nil {
		return "routing: " + e.Status
	}
	return fmt.Sprintf("routing: %s: %v", e.Status, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }
