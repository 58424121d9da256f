// README: Booking submitter; validates, assembles, posts and announces bookings.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"keralaride/internal/apiclient"
	"keralaride/internal/metrics"
	"keralaride/internal/modules/pricing"
)

// API is the subset of the REST client used for bookings.
type API interface {
	UserDetails(ctx context.Context, token string) (*apiclient.User, error)
	CreateBooking(ctx context.Context, token string, payload any) (string, error)
	BookingDetails(ctx context.Context, token string) ([]json.RawMessage, error)
	UpdateBookingStatus(ctx context.Context, token, bookingID, status string) error
}

type Service struct {
	api       API
	pricing   *pricing.Service
	validator *ContactValidator
	sinks     []EventSink
	now       func() time.Time
}

func NewService(api API, pricingSvc *pricing.Service, loc *time.Location, sinks ...EventSink) *Service {
	return &Service{
		api:       api,
		pricing:   pricingSvc,
		validator: NewContactValidator(loc),
		sinks:     sinks,
		now:       time.Now,
	}
}

// Validate checks contact info against the current time.
func (s *Service) Validate(c ContactInfo) error {
	return s.validator.Validate(c, s.now())
}

// Quote prices the draft's first leg with the selected vehicle.
func (s *Service) Quote(d Draft) (pricing.Quote, error) {
	if d.Selection == nil {
		return pricing.Quote{}, ErrMissingSelection
	}
	leg := d.Route.FirstLeg()
	return s.pricing.Quote(float64(leg.Distance.Value), d.Selection.FareStructure), nil
}

// Assemble builds the booking record for d. riderName is the display name
// fetched from the user profile.
func (s *Service) Assemble(d Draft, riderName string, now time.Time) (Booking, error) {
	q, err := s.Quote(d)
	if err != nil {
		return Booking{}, err
	}

	leg := d.Route.FirstLeg()
	origin := Endpoint{Address: d.Origin.Description, Location: leg.StartLocation}
	if leg.StartAddress != "" && origin.Address == "" {
		origin.Address = leg.StartAddress
	}
	destination := Endpoint{Address: d.Destination.Description, Location: leg.EndLocation}
	if leg.EndAddress != "" && destination.Address == "" {
		destination.Address = leg.EndAddress
	}

	vehicle := d.Vehicle
	vehicle.Images = append([]string(nil), d.Vehicle.Images...)
	vehicle.Documents = append([]string(nil), d.Vehicle.Documents...)
	if d.Vehicle.FareStructure != nil {
		fs := *d.Vehicle.FareStructure
		vehicle.FareStructure = &fs
	}
	driver := d.Driver
	driver.Vehicles = nil

	return Booking{
		Origin:      origin,
		Destination: destination,
		Distance:    leg.Distance,
		Duration:    leg.Duration,
		Route: RouteInfo{
			Summary:   d.Route.Summary,
			Polyline:  d.Route.Polyline,
			Waypoints: d.Route.Waypoints,
			Bounds:    d.Route.Bounds,
		},
		Price: Price{
			Fare:        q.Fare,
			MinimumFare: q.MinimumFare,
			BookingFee:  q.BookingFee,
			Total:       q.Total,
			Currency:    q.Currency,
		},
		Vehicle:   VehicleRef{ID: d.Selection.VehicleID, Details: vehicle},
		Driver:    DriverRef{ID: d.Selection.DriverID, Details: driver},
		UserInfo:  UserInfo{Name: riderName, Phone: d.Contact.Phone, ScheduledDateTime: d.Contact.ScheduledDateTime()},
		Timestamp: now.UTC(),
		Status:    StatusPending,
	}, nil
}

// Submit validates d, posts the booking and announces it. Any failure after
// validation is returned as *SubmissionError; a booking is never reported
// as confirmed unless the endpoint accepted it.
func (s *Service) Submit(ctx context.Context, token string, d Draft) (*Confirmation, error) {
	if d.Selection == nil {
		return nil, ErrMissingSelection
	}
	d.Contact = ContactInfo{
		Phone: strings.TrimSpace(d.Contact.Phone),
		Date:  strings.TrimSpace(d.Contact.Date),
		Time:  strings.TrimSpace(d.Contact.Time),
	}
	if err := s.Validate(d.Contact); err != nil {
		return nil, err
	}

	start := time.Now()
	conf, err := s.submit(ctx, token, d)
	metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BookingSubmissions.WithLabelValues("failed").Inc()
		logrus.WithError(err).WithField("vehicle", d.Selection.VehicleID).Warn("booking submission failed")
		return nil, err
	}
	outcome := "confirmed"
	if conf.Provisional {
		outcome = "provisional"
	}
	metrics.BookingSubmissions.WithLabelValues(outcome).Inc()
	logrus.WithFields(logrus.Fields{
		"reference":   conf.Reference,
		"provisional": conf.Provisional,
		"total":       conf.Booking.Price.Total,
	}).Info("booking confirmed")

	s.publish(ctx, NewCreatedEvent(*conf))
	return conf, nil
}

func (s *Service) submit(ctx context.Context, token string, d Draft) (*Confirmation, error) {
	user, err := s.api.UserDetails(ctx, token)
	if err != nil {
		return nil, &SubmissionError{Stage: "user", Err: err}
	}

	b, err := s.Assemble(d, user.Name, s.now())
	if err != nil {
		return nil, &SubmissionError{Stage: "assemble", Err: err}
	}

	id, err := s.api.CreateBooking(ctx, token, b)
	if err != nil {
		return nil, &SubmissionError{Stage: "create", Err: err}
	}

	conf := &Confirmation{Booking: b, Reference: id}
	if id == "" {
		conf.Reference = FallbackReference()
		conf.Provisional = true
	} else {
		conf.Booking.BookingID = id
	}
	return conf, nil
}

// FallbackReference returns a display-only reference like BK0042.
func FallbackReference() string {
	return fmt.Sprintf("BK%04d", rand.IntN(10000))
}

// List returns the caller's bookings. Records that cannot be decoded are
// skipped.
func (s *Service) List(ctx context.Context, token string) ([]Booking, error) {
	raws, err := s.api.BookingDetails(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]Booking, 0, len(raws))
	for _, raw := range raws {
		b, err := decodeBooking(raw)
		if err != nil {
			logrus.WithError(err).Debug("skipping undecodable booking")
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// UpdateStatus moves booking id to status to. Only forward transitions are
// allowed.
func (s *Service) UpdateStatus(ctx context.Context, token, id string, to Status) error {
	bookings, err := s.List(ctx, token)
	if err != nil {
		return err
	}
	var current *Booking
	for i := range bookings {
		if bookings[i].BookingID == id {
			current = &bookings[i]
			break
		}
	}
	if current == nil {
		return ErrNotFound
	}
	if !CanTransition(current.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	if err := s.api.UpdateBookingStatus(ctx, token, id, string(to)); err != nil {
		if errors.Is(err, apiclient.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update booking status: %w", err)
	}

	s.publish(ctx, NewStatusEvent(*current, to, s.now()))
	return nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, e); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"event":   e.Type,
				"booking": e.BookingID,
			}).Warn("event publish failed")
		}
	}
}

// decodeBooking reads a stored booking, accepting the id under bookingId,
// id or _id.
func decodeBooking(raw json.RawMessage) (Booking, error) {
	var b Booking
	if err := json.Unmarshal(raw, &b); err != nil {
		return Booking{}, err
	}
	if b.BookingID == "" {
		var ids struct {
			ID      string `json:"id"`
			MongoID string `json:"_id"`
		}
		_ = json.Unmarshal(raw, &ids)
		b.BookingID = ids.ID
		if b.BookingID == "" {
			b.BookingID = ids.MongoID
		}
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	return b, nil
}
