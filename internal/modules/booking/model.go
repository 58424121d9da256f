// README: Booking record, status lifecycle and submission errors.
package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"keralaride/internal/maps"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// AllowedTransitions is the booking lifecycle. Transitions only move forward.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
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

func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

type Endpoint struct {
	Address  string      `json:"address"`
	Location types.Point `json:"location"`
}

type RouteInfo struct {
	Summary   string        `json:"summary"`
	Polyline  string        `json:"polyline"`
	Waypoints []types.Point `json:"waypoints"`
	Bounds    maps.Bounds   `json:"bounds"`
}

type Price struct {
	Fare        int64  `json:"fare"`
	MinimumFare int64  `json:"minimumFare"`
	BookingFee  int64  `json:"bookingFee"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency,omitempty"`
}

type VehicleRef struct {
	ID      types.ID      `json:"id"`
	Details fleet.Vehicle `json:"details"`
}

type DriverRef struct {
	ID      string       `json:"id"`
	Details fleet.Driver `json:"details"`
}

type UserInfo struct {
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	ScheduledDateTime string `json:"scheduledDateTime"`
}

// Booking is the record posted to the booking endpoint. Vehicle and driver
// details are snapshots taken at submission time.
type Booking struct {
	BookingID   string       `json:"bookingId,omitempty"`
	Origin      Endpoint     `json:"origin"`
	Destination Endpoint     `json:"destination"`
	Distance    maps.Measure `json:"distance"`
	Duration    maps.Measure `json:"duration"`
	Route       RouteInfo    `json:"route"`
	Price       Price        `json:"price"`
	Vehicle     VehicleRef   `json:"vehicle"`
	Driver      DriverRef    `json:"driver"`
	UserInfo    UserInfo     `json:"userInfo"`
	Timestamp   time.Time    `json:"timestamp"`
	Status      Status       `json:"status"`
}

// ContactInfo is what the rider types before confirming. Date is
// YYYY-MM-DD and Time is HH:MM in the service timezone.
type ContactInfo struct {
	Phone string `json:"phone" validate:"required,phone10"`
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Time  string `json:"time" validate:"required,datetime=15:04"`
}

// ScheduledDateTime joins date and time as the booking endpoint expects.
func (c ContactInfo) ScheduledDateTime() string {
	return c.Date + "T" + c.Time
}

// Draft is everything gathered by the flow before submission.
type Draft struct {
	Origin      maps.Place       `json:"origin"`
	Destination maps.Place       `json:"destination"`
	Route       maps.Route       `json:"route"`
	Selection   *fleet.Selection `json:"selection,omitempty"`
	Vehicle     fleet.Vehicle    `json:"vehicle"`
	Driver      fleet.Driver     `json:"driver"`
	Contact     ContactInfo      `json:"contact"`
}

// Confirmation is a booking the endpoint accepted. Provisional references
// are display-only and must not be used for status lookups.
type Confirmation struct {
	Booking     Booking `json:"booking"`
	Reference   string  `json:"reference"`
	Provisional bool    `json:"provisional"`
}

var (
	ErrMissingSelection  = errors.New("no vehicle selected")
	ErrNotFound          = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError lists per-field problems with the contact form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid contact info: " + strings.Join(parts, "; ")
}

// SubmissionError wraps a failed booking request. The booking was not created.
type SubmissionError struct {
	Stage string
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("booking submission failed (%s): %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
