package booking

import (
	"context"
	"time"
)

const (
	EventCreated       = "booking.created"
	EventStatusChanged = "booking.status_changed"
)

// Event announces a booking change to downstream systems. BookingID is the
// server id and is empty for provisional confirmations; Reference is what
// the rider was shown.
type Event struct {
	Type        string    `json:"type"`
	BookingID   string    `json:"bookingId,omitempty"`
	Reference   string    `json:"reference"`
	Provisional bool      `json:"provisional,omitempty"`
	DriverID    string    `json:"driverId"`
	Status      Status    `json:"status"`
	Total       int64     `json:"total"`
	ScheduledAt string    `json:"scheduledAt,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// EventSink receives booking events. Publish failures never fail the
// operation that produced the event.
type EventSink interface {
	Publish(ctx context.Context, e Event) error
}

func NewCreatedEvent(c Confirmation) Event {
	return Event{
		Type:        EventCreated,
		BookingID:   c.Booking.BookingID,
		Reference:   c.Reference,
		Provisional: c.Provisional,
		DriverID:    c.Booking.Driver.ID,
		Status:      c.Booking.Status,
		Total:       c.Booking.Price.Total,
		ScheduledAt: c.Booking.UserInfo.ScheduledDateTime,
		OccurredAt:  c.Booking.Timestamp,
	}
}

func NewStatusEvent(b Booking, to Status, at time.Time) Event {
	return Event{
		Type:        EventStatusChanged,
		BookingID:   b.BookingID,
		Reference:   b.BookingID,
		DriverID:    b.Driver.ID,
		Status:      to,
		Total:       b.Price.Total,
		ScheduledAt: b.UserInfo.ScheduledDateTime,
		OccurredAt:  at.UTC(),
	}
}
