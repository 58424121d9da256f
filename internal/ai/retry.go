package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"keralaride/internal/metrics"
)

const (
	DefaultMaxAttempts = 3
	baseBackoff        = 500 * time.Millisecond
	maxBackoff         = 8 * time.Second
)

// Retrying wraps a CommandParser with bounded exponential backoff. A
// rate-limit hint longer than the computed backoff is waited out instead.
type Retrying struct {
	next        CommandParser
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetrying(next CommandParser, maxAttempts int) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Retrying{next: next, maxAttempts: maxAttempts, sleep: sleepContext}
}

func (r *Retrying) ParseBookingCommand(ctx context.Context, transcript string, currentContext map[string]string) (*BookingCommand, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff(attempt)
			reason := "error"
			var rl *RateLimitError
			if errors.As(lastErr, &rl) {
				reason = "rate_limit"
				if rl.RetryAfter > delay {
					delay = rl.RetryAfter
				}
			}
			metrics.LLMRetries.WithLabelValues(reason).Inc()
			logrus.WithError(lastErr).WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"delay":   delay.String(),
			}).Warn("retrying command parse")
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		cmd, err := r.next.ParseBookingCommand(ctx, transcript, currentContext)
		if err == nil {
			return cmd, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// backoff is the wait before attempt n (n >= 1): 500ms doubling, capped.
func backoff(n int) time.Duration {
	d := baseBackoff
	for i := 1; i < n && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) &&
		!errors.Is(err, ErrEmptyTranscript)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
