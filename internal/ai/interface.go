package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CommandParser turns a spoken booking request into structured fields.
// This interface allows swapping providers (Gemini, any chat-completion endpoint).
type CommandParser interface {
	// ParseBookingCommand extracts booking fields from transcript.
	// currentContext carries "current_time" and any fields already filled in.
	ParseBookingCommand(ctx context.Context, transcript string, currentContext map[string]string) (*BookingCommand, error)
}

var (
	ErrEmptyTranscript = errors.New("empty transcript")
	ErrEmptyReply      = errors.New("model returned no content")
)

// RateLimitError marks a provider refusal that should be retried after
// RetryAfter (zero when the provider gave no hint).
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }
