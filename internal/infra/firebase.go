// README: Firebase Admin SDK initialisation and the driver push notifier.
package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"keralaride/internal/modules/booking"
)

// messageSender is the subset of *messaging.Client used for notifications.
type messageSender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// DriverNotifier pushes new bookings to the assigned driver's FCM topic.
// Driver apps subscribe to "driver_<email>" with the email sanitised by
// DriverTopic.
type DriverNotifier struct {
	client messageSender
}

// NewDriverNotifier creates a notifier using the Firebase Admin SDK.
// If credentialsFile is non-empty it is used as the service-account JSON path;
// otherwise application-default credentials are used.
func NewDriverNotifier(ctx context.Context, projectID, credentialsFile string) (*DriverNotifier, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return &DriverNotifier{client: client}, nil
}

// Publish notifies only on new bookings; status changes are driven by the
// driver and need no push.
func (n *DriverNotifier) Publish(ctx context.Context, e booking.Event) error {
	if e.Type != booking.EventCreated || e.DriverID == "" {
		return nil
	}

	msg := &messaging.Message{
		Topic: DriverTopic(e.DriverID),
		Data: map[string]string{
			"type":         "new_booking",
			"booking_id":   e.BookingID,
			"reference":    e.Reference,
			"provisional":  strconv.FormatBool(e.Provisional),
			"total":        strconv.FormatInt(e.Total, 10),
			"scheduled_at": e.ScheduledAt,
		},
		Notification: &messaging.Notification{
			Title: "New booking",
			Body:  fmt.Sprintf("Trip scheduled for %s, fare ₹%d", e.ScheduledAt, e.Total),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	messageID, err := n.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM to topic %s: %w", msg.Topic, err)
	}
	logrus.WithFields(logrus.Fields{
		"booking_id": e.BookingID,
		"reference":  e.Reference,
		"message_id": messageID,
	}).Info("driver notified")
	return nil
}

// DriverTopic maps a driver email onto the FCM topic alphabet
// [a-zA-Z0-9-_.~%].
func DriverTopic(email string) string {
	var b strings.Builder
	b.WriteString("driver_")
	for _, r := range strings.ToLower(email) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '~':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
