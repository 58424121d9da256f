// README: Booking-flow service; drives a session from place entry to a submitted booking.
package flow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"keralaride/internal/maps"
	"keralaride/internal/metrics"
	"keralaride/internal/modules/booking"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/modules/pricing"
	"keralaride/internal/types"
)

const (
	maxUpdateAttempts = 3

	// outcomeAttempts bounds how often a submission outcome write is tried.
	outcomeAttempts = 4

	defaultOutcomeDelay = 100 * time.Millisecond
	defaultSubmitWindow = time.Minute
)

// ErrOutcomeNotSaved means the booking request finished but its outcome
// could not be written to the session. The returned session still carries
// the outcome.
var ErrOutcomeNotSaved = errors.New("submission outcome could not be saved")

type PlaceResolver interface {
	Resolve(ctx context.Context, query string) iter.Seq[maps.Place]
}

type RoutePlanner interface {
	Plan(ctx context.Context, originID, destinationID string) ([]maps.Route, error)
}

type DriverLister interface {
	ListDrivers(ctx context.Context, token string) ([]fleet.Driver, error)
}

type Submitter interface {
	Quote(d booking.Draft) (pricing.Quote, error)
	Validate(c booking.ContactInfo) error
	Submit(ctx context.Context, token string, d booking.Draft) (*booking.Confirmation, error)
}

type Service struct {
	store    Store
	places   PlaceResolver
	routes   RoutePlanner
	drivers  DriverLister
	bookings Submitter
	now      func() time.Time

	outcomeDelay time.Duration
	// submitWindow is how long a session may sit in StateSubmitting before
	// Retry and Reset treat the outcome as lost.
	submitWindow time.Duration
}

func NewService(store Store, places PlaceResolver, routes RoutePlanner, drivers DriverLister, bookings Submitter) *Service {
	return &Service{
		store:    store,
		places:   places,
		routes:   routes,
		drivers:  drivers,
		bookings: bookings,
		now:      time.Now,

		outcomeDelay: defaultOutcomeDelay,
		submitWindow: defaultSubmitWindow,
	}
}

// WithSubmitWindow sets how long a submission may stay in flight. It should
// exceed the time the booking calls can take.
func (s *Service) WithSubmitWindow(d time.Duration) *Service {
	if d > 0 {
		s.submitWindow = d
	}
	return s
}

// Start opens a new session for owner in StateSelectingPlaces.
func (s *Service) Start(ctx context.Context, owner string) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Owner:     owner,
		State:     StateSelectingPlaces,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	logrus.WithFields(logrus.Fields{"session": sess.ID, "owner": owner}).Info("booking flow started")
	return sess, nil
}

// Get returns owner's session. Sessions of other owners are reported as
// not found.
func (s *Service) Get(ctx context.Context, owner, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Owner != owner {
		return nil, ErrNotFound
	}
	return sess, nil
}

// mutate loads the session, applies fn and saves it, retrying when another
// request saved in between.
func (s *Service) mutate(ctx context.Context, owner, id string, fn func(*Session) error) (*Session, error) {
	for range maxUpdateAttempts {
		sess, err := s.Get(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if err := fn(sess); err != nil {
			return nil, err
		}
		sess.UpdatedAt = s.now().UTC()
		err = s.store.Update(ctx, sess)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
	return nil, ErrConflict
}

func editingPlaces(st State) bool {
	return CanTransition(st, StateSelectingPlaces) && st != StateConfirmed && st != StateSubmissionFailed
}

// Suggest resolves query for field. Only the latest Suggest per field is
// applied; an older one finishing later returns ErrStale and stores nothing.
func (s *Service) Suggest(ctx context.Context, owner, id string, f Field, query string) ([]maps.Place, error) {
	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !editingPlaces(sess.State) {
		return nil, ErrInvalidState
	}

	seq, err := s.store.NextSeq(ctx, id, f)
	if err != nil {
		return nil, fmt.Errorf("allocate request number: %w", err)
	}

	places := slices.Collect(s.places.Resolve(ctx, query))
	if places == nil {
		places = []maps.Place{}
	}

	if err := s.checkLatest(ctx, id, f, seq); err != nil {
		return nil, err
	}
	_, err = s.mutate(ctx, owner, id, func(sess *Session) error {
		if err := s.checkLatest(ctx, id, f, seq); err != nil {
			return err
		}
		if sess.Suggestions == nil {
			sess.Suggestions = map[Field][]maps.Place{}
		}
		sess.Suggestions[f] = places
		return nil
	})
	if err != nil {
		return nil, err
	}
	return places, nil
}

func (s *Service) checkLatest(ctx context.Context, id string, f Field, seq int64) error {
	latest, err := s.store.CurrentSeq(ctx, id, f)
	if err != nil {
		return err
	}
	if latest != seq {
		metrics.StaleSuggestions.Inc()
		return ErrStale
	}
	return nil
}

// ChoosePlace sets field to one of its current suggestions. Any planned
// routes and vehicle selection are discarded.
func (s *Service) ChoosePlace(ctx context.Context, owner, id string, f Field, placeID string) (*Session, error) {
	return s.mutate(ctx, owner, id, func(sess *Session) error {
		if !editingPlaces(sess.State) {
			return ErrInvalidState
		}
		idx := slices.IndexFunc(sess.Suggestions[f], func(p maps.Place) bool { return p.ID == placeID })
		if idx < 0 {
			return maps.ErrNoPlace
		}
		p := sess.Suggestions[f][idx]
		if f == FieldOrigin {
			sess.Origin = &p
		} else {
			sess.Destination = &p
		}
		sess.clearRoutes()
		sess.LastError = ""
		return sess.transition(StateSelectingPlaces)
	})
}

// PlanRoutes requests driving alternatives for the chosen places. The first
// route becomes the selection; any vehicle selection is cleared. On a
// routing error the session keeps its previous routes.
func (s *Service) PlanRoutes(ctx context.Context, owner, id string) (*Session, error) {
	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(sess.State, StateRoutePlanned) {
		return nil, ErrInvalidState
	}
	if sess.Origin == nil || sess.Destination == nil {
		return nil, ErrIncompletePlaces
	}
	originID, destID := sess.Origin.ID, sess.Destination.ID

	routes, planErr := s.routes.Plan(ctx, originID, destID)

	updated, err := s.mutate(ctx, owner, id, func(sess *Session) error {
		if sess.Origin == nil || sess.Destination == nil ||
			sess.Origin.ID != originID || sess.Destination.ID != destID {
			return ErrStale
		}
		if planErr != nil {
			sess.LastError = planErr.Error()
			return nil
		}
		if err := sess.transition(StateRoutePlanned); err != nil {
			return err
		}
		sess.clearRoutes()
		sess.Routes = routes
		sess.LastError = ""
		fillCoordinates(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if planErr != nil {
		return updated, planErr
	}
	logrus.WithFields(logrus.Fields{"session": id, "routes": len(routes)}).Info("routes planned")
	return updated, nil
}

// fillCoordinates copies the first route's leg endpoints onto the chosen
// places, which autocomplete leaves without coordinates.
func fillCoordinates(sess *Session) {
	route, ok := sess.Route()
	if !ok {
		return
	}
	leg := route.FirstLeg()
	set := func(p *maps.Place, pt types.Point) {
		if p == nil || p.Lat != nil {
			return
		}
		lat, lng := pt.Lat, pt.Lng
		p.Lat, p.Lng = &lat, &lng
	}
	set(sess.Origin, leg.StartLocation)
	set(sess.Destination, leg.EndLocation)
}

// SelectRoute picks another alternative and reprices the selected vehicle.
func (s *Service) SelectRoute(ctx context.Context, owner, id string, index int) (*Session, error) {
	return s.mutate(ctx, owner, id, func(sess *Session) error {
		switch sess.State {
		case StateRoutePlanned, StateSelectingVehicle, StateVehicleSelected:
		default:
			return ErrInvalidState
		}
		if index < 0 || index >= len(sess.Routes) {
			return ErrInvalidRoute
		}
		sess.RouteIndex = index
		return s.requote(sess)
	})
}

// LoadVehicles fetches drivers with at least one vehicle.
func (s *Service) LoadVehicles(ctx context.Context, owner, token, id string) (*Session, error) {
	sess, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	switch sess.State {
	case StateRoutePlanned, StateSelectingVehicle, StateVehicleSelected:
	default:
		return nil, ErrInvalidState
	}

	drivers, err := s.drivers.ListDrivers(ctx, token)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, owner, id, func(sess *Session) error {
		sess.Drivers = drivers
		switch sess.State {
		case StateRoutePlanned:
			return sess.transition(StateSelectingVehicle)
		case StateSelectingVehicle:
			return nil
		case StateVehicleSelected:
			if sess.Selection != nil {
				if _, _, err := fleet.FindVehicle(drivers, sess.Selection.VehicleID); err != nil {
					sess.clearSelection()
					return sess.transition(StateSelectingVehicle)
				}
			}
			return nil
		}
		return ErrInvalidState
	})
}

// SelectVehicle makes vehicleID the only active selection and prices the
// selected route with its fare structure.
func (s *Service) SelectVehicle(ctx context.Context, owner, id string, vehicleID types.ID) (*Session, error) {
	return s.mutate(ctx, owner, id, func(sess *Session) error {
		if !CanTransition(sess.State, StateVehicleSelected) {
			return ErrInvalidState
		}
		sel, err := fleet.Restore(sess.Selection).Select(sess.Drivers, vehicleID)
		if err != nil {
			return err
		}
		sess.Selection = &sel
		if err := sess.transition(StateVehicleSelected); err != nil {
			return err
		}
		return s.requote(sess)
	})
}

func (s *Service) requote(sess *Session) error {
	if sess.Selection == nil {
		sess.Quote = nil
		return nil
	}
	d, err := sess.Draft()
	if err != nil {
		return err
	}
	q, err := s.bookings.Quote(d)
	if err != nil {
		return err
	}
	sess.Quote = &q
	return nil
}

// BeginContact moves a session with a selected vehicle to contact entry.
func (s *Service) BeginContact(ctx context.Context, owner, id string) (*Session, error) {
	return s.mutate(ctx, owner, id, func(sess *Session) error {
		if sess.Selection == nil {
			return booking.ErrMissingSelection
		}
		return sess.transition(StateCollectingInfo)
	})
}

// Submit validates contact, then posts the booking. Invalid contact info
// keeps the session collecting; a failed post leaves it in
// StateSubmissionFailed, from which Retry returns to contact entry.
func (s *Service) Submit(ctx context.Context, owner, token, id string, contact booking.ContactInfo) (*Session, error) {
	sess, err := s.mutate(ctx, owner, id, func(sess *Session) error {
		if sess.State != StateCollectingInfo {
			return ErrInvalidState
		}
		if sess.Selection == nil {
			return booking.ErrMissingSelection
		}
		c := contact
		sess.Contact = &c
		if err := s.bookings.Validate(contact); err != nil {
			return err
		}
		return sess.transition(StateSubmitting)
	})
	if err != nil {
		return nil, err
	}

	draft, err := sess.Draft()
	var conf *booking.Confirmation
	if err == nil {
		conf, err = s.bookings.Submit(ctx, token, draft)
	}

	record := func(sess *Session) {
		if err != nil {
			sess.LastError = err.Error()
			sess.State = StateSubmissionFailed
			return
		}
		sess.Confirmation = conf
		sess.LastError = ""
		sess.State = StateConfirmed
	}

	// The outcome is recorded even if the caller went away.
	updated, uerr := s.recordOutcome(context.WithoutCancel(ctx), owner, id, func(sess *Session) error {
		if sess.State != StateSubmitting {
			return fmt.Errorf("%w: outcome arrived in %s", ErrInvalidState, sess.State)
		}
		record(sess)
		return nil
	})
	if uerr == nil {
		return updated, err
	}

	logrus.WithError(uerr).WithFields(logrus.Fields{
		"session":   id,
		"confirmed": err == nil,
	}).Error("failed to record submission outcome")
	record(sess)
	if err != nil {
		return sess, err
	}
	return sess, fmt.Errorf("%w: %w", ErrOutcomeNotSaved, uerr)
}

// recordOutcome retries fn with a short doubling delay. Session errors that
// a retry cannot change end the loop at once.
func (s *Service) recordOutcome(ctx context.Context, owner, id string, fn func(*Session) error) (*Session, error) {
	var lastErr error
	delay := s.outcomeDelay
	for attempt := range outcomeAttempts {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		sess, err := s.mutate(ctx, owner, id, fn)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// abandonStale moves a submission whose outcome was never recorded to
// StateSubmissionFailed once the submit window has passed.
func (s *Service) abandonStale(sess *Session) {
	if sess.State != StateSubmitting || s.now().Sub(sess.UpdatedAt) < s.submitWindow {
		return
	}
	sess.State = StateSubmissionFailed
	sess.LastError = "submission outcome unknown; check your bookings before retrying"
	logrus.WithField("session", sess.ID).Warn("abandoning submission with no recorded outcome")
}

// Retry returns a failed submission to contact entry, keeping the entered
// contact info.
func (s *Service) Retry(ctx context.Context, owner, id string) (*Session, error) {
	return s.mutate(ctx, owner, id, func(sess *Session) error {
		s.abandonStale(sess)
		if sess.State != StateSubmissionFailed {
			return ErrInvalidState
		}
		return sess.transition(StateCollectingInfo)
	})
}

// Reset clears everything and returns to place selection. A submission in
// flight cannot be reset until its submit window has passed.
func (s *Service) Reset(ctx context.Context, owner, id string) (*Session, error) {
	return s.mutate(ctx, owner, id, func(sess *Session) error {
		s.abandonStale(sess)
		if err := sess.transition(StateSelectingPlaces); err != nil {
			return err
		}
		sess.Origin, sess.Destination = nil, nil
		sess.Suggestions = nil
		sess.clearRoutes()
		sess.Drivers = nil
		sess.Confirmation = nil
		sess.LastError = ""
		return nil
	})
}
