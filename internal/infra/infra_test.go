package infra

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/segmentio/kafka-go"

	"keralaride/internal/modules/booking"
)

type stubWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *stubWriter) Close() error { return nil }

func sampleEvent() booking.Event {
	return booking.Event{
		Type:        booking.EventCreated,
		BookingID:   "B-1",
		Reference:   "B-1",
		DriverID:    "Ravi.K+1@example.com",
		Status:      booking.StatusPending,
		Total:       649,
		ScheduledAt: "2026-10-20T09:30",
		OccurredAt:  time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
	}
}

func TestKafkaSinkKeysByBooking(t *testing.T) {
	w := &stubWriter{}
	sink := &KafkaSink{writer: w}

	if err := sink.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "B-1" {
		t.Errorf("key = %q", msg.Key)
	}
	var got booking.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("value: %v", err)
	}
	if got.Total != 649 || got.Type != booking.EventCreated {
		t.Errorf("event = %+v", got)
	}
}

func TestKafkaSinkWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	sink := &KafkaSink{writer: &stubWriter{err: boom}}
	if err := sink.Publish(context.Background(), sampleEvent()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped broker error", err)
	}
}

func TestKafkaSinkLeavesProvisionalUnkeyed(t *testing.T) {
	w := &stubWriter{}
	sink := &KafkaSink{writer: w}
	e := sampleEvent()
	e.BookingID, e.Reference, e.Provisional = "", "BK0042", true

	if err := sink.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if w.msgs[0].Key != nil {
		t.Errorf("key = %q, want none for a provisional booking", w.msgs[0].Key)
	}
	var got booking.Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("value: %v", err)
	}
	if got.BookingID != "" || got.Reference != "BK0042" || !got.Provisional {
		t.Errorf("event = %+v", got)
	}
}

type stubSender struct {
	sent []*messaging.Message
}

func (s *stubSender) Send(_ context.Context, msg *messaging.Message) (string, error) {
	s.sent = append(s.sent, msg)
	return "projects/p/messages/1", nil
}

func TestDriverNotifierSendsToDriverTopic(t *testing.T) {
	s := &stubSender{}
	n := &DriverNotifier{client: s}

	if err := n.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(s.sent))
	}
	if got := s.sent[0].Topic; got != "driver_ravi.k_1_example.com" {
		t.Errorf("topic = %q", got)
	}
	if s.sent[0].Data["total"] != "649" {
		t.Errorf("data = %v", s.sent[0].Data)
	}
}

func TestDriverNotifierIgnoresStatusChanges(t *testing.T) {
	s := &stubSender{}
	n := &DriverNotifier{client: s}
	e := sampleEvent()
	e.Type = booking.EventStatusChanged
	if err := n.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(s.sent) != 0 {
		t.Errorf("status change should not push")
	}
}
