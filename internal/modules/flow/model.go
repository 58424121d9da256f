// README: Booking-flow session and its state machine.
package flow

import (
	"errors"
	"fmt"
	"time"

	"keralaride/internal/maps"
	"keralaride/internal/modules/booking"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/modules/pricing"
)

type State string

const (
	StateSelectingPlaces  State = "selecting_places"
	StateRoutePlanned     State = "route_planned"
	StateSelectingVehicle State = "selecting_vehicle"
	StateVehicleSelected  State = "vehicle_selected"
	StateCollectingInfo   State = "collecting_contact_info"
	StateSubmitting       State = "submitting"
	StateConfirmed        State = "confirmed"
	StateSubmissionFailed State = "submission_failed"
)

// AllowedTransitions is the flow diagram as code. Self-loops cover
// re-planning and re-selection. Nothing leaves Submitting except its
// two outcomes.
var AllowedTransitions = map[State][]State{
	StateSelectingPlaces:  {StateSelectingPlaces, StateRoutePlanned},
	StateRoutePlanned:     {StateSelectingPlaces, StateRoutePlanned, StateSelectingVehicle},
	StateSelectingVehicle: {StateSelectingPlaces, StateRoutePlanned, StateSelectingVehicle, StateVehicleSelected},
	StateVehicleSelected:  {StateSelectingPlaces, StateRoutePlanned, StateSelectingVehicle, StateVehicleSelected, StateCollectingInfo},
	StateCollectingInfo:   {StateSelectingPlaces, StateVehicleSelected, StateSubmitting},
	StateSubmitting:       {StateConfirmed, StateSubmissionFailed},
	StateSubmissionFailed: {StateSelectingPlaces, StateCollectingInfo},
	StateConfirmed:        {StateSelectingPlaces},
}

func CanTransition(from, to State) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Field names one of the two place inputs.
type Field string

const (
	FieldOrigin      Field = "origin"
	FieldDestination Field = "destination"
)

func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case FieldOrigin, FieldDestination:
		return f, nil
	}
	return "", ErrInvalidField
}

var (
	ErrNotFound         = errors.New("flow session not found")
	ErrInvalidState     = errors.New("operation not allowed in current state")
	ErrConflict         = errors.New("flow session was modified concurrently")
	ErrStale            = errors.New("superseded by a newer request")
	ErrInvalidField     = errors.New("field must be origin or destination")
	ErrInvalidRoute     = errors.New("route index out of range")
	ErrIncompletePlaces = errors.New("origin and destination are required")
)

// Session is one rider's progress through the booking flow.
type Session struct {
	ID      string `json:"id"`
	Owner   string `json:"-"`
	State   State  `json:"state"`
	Version int64  `json:"version"`

	Origin      *maps.Place            `json:"origin,omitempty"`
	Destination *maps.Place            `json:"destination,omitempty"`
	Suggestions map[Field][]maps.Place `json:"suggestions,omitempty"`

	Routes     []maps.Route `json:"routes,omitempty"`
	RouteIndex int          `json:"routeIndex"`

	Drivers   []fleet.Driver   `json:"drivers,omitempty"`
	Selection *fleet.Selection `json:"selection,omitempty"`
	Quote     *pricing.Quote   `json:"quote,omitempty"`

	Contact      *booking.ContactInfo  `json:"contact,omitempty"`
	Confirmation *booking.Confirmation `json:"confirmation,omitempty"`
	LastError    string                `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// storedSession keeps Owner in the persisted form while the API view hides it.
type storedSession struct {
	*Session
	Owner string `json:"owner"`
}

func (s *Session) transition(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.State, to)
	}
	s.State = to
	return nil
}

// Route returns the selected route, if any.
func (s *Session) Route() (maps.Route, bool) {
	if s.RouteIndex < 0 || s.RouteIndex >= len(s.Routes) {
		return maps.Route{}, false
	}
	return s.Routes[s.RouteIndex], true
}

func (s *Session) place(f Field) *maps.Place {
	if f == FieldOrigin {
		return s.Origin
	}
	return s.Destination
}

func (s *Session) clearRoutes() {
	s.Routes = nil
	s.RouteIndex = 0
	s.clearSelection()
}

func (s *Session) clearSelection() {
	s.Selection = nil
	s.Quote = nil
	s.Contact = nil
}

// Draft collects what booking submission needs from the session.
func (s *Session) Draft() (booking.Draft, error) {
	if s.Selection == nil {
		return booking.Draft{}, booking.ErrMissingSelection
	}
	route, ok := s.Route()
	if !ok || s.Origin == nil || s.Destination == nil {
		return booking.Draft{}, ErrIncompletePlaces
	}
	d := booking.Draft{
		Origin:      *s.Origin,
		Destination: *s.Destination,
		Route:       route,
		Selection:   s.Selection,
	}
	if v, drv, err := fleet.FindVehicle(s.Drivers, s.Selection.VehicleID); err == nil {
		d.Vehicle, d.Driver = v, drv
	}
	if s.Contact != nil {
		d.Contact = *s.Contact
	}
	return d, nil
}
