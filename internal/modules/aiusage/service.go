// README: AI-usage service; charges one token per voice command parse.
package aiusage

import (
	"context"
	"errors"

	"keralaride/internal/ai"
)

// Quota is the persistence the service needs.
type Quota interface {
	UseToken(ctx context.Context, uid string) error
	Remaining(ctx context.Context, uid string) (int, error)
}

// Service orchestrates AI token-usage logic.
type Service struct {
	store  Quota
	parser ai.CommandParser
}

// NewService creates a Service backed by the given store. parser may be nil
// when no LLM provider is configured.
func NewService(store Quota, parser ai.CommandParser) *Service {
	return &Service{store: store, parser: parser}
}

// ErrDisabled is returned by ParseCommand when no provider is configured.
var ErrDisabled = errors.New("voice commands are not configured")

// UseToken deducts one token from the user's monthly allowance, returning
// ErrInsufficientTokens once it is spent.
func (s *Service) UseToken(ctx context.Context, uid string) error {
	return s.store.UseToken(ctx, uid)
}

// Remaining reports the caller's tokens left this month.
func (s *Service) Remaining(ctx context.Context, uid string) (int, error) {
	return s.store.Remaining(ctx, uid)
}

// ParseCommand charges uid one token and parses transcript.
func (s *Service) ParseCommand(ctx context.Context, uid, transcript string, currentContext map[string]string) (*ai.BookingCommand, error) {
	if s.parser == nil {
		return nil, ErrDisabled
	}
	if err := s.UseToken(ctx, uid); err != nil {
		return nil, err
	}
	return s.parser.ParseBookingCommand(ctx, transcript, currentContext)
}
