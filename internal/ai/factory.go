package ai

import (
	"context"
	"errors"
	"fmt"

	"keralaride/internal/config"
)

var ErrNotConfigured = errors.New("no LLM provider configured")

// NewParser builds the configured provider wrapped in Retrying. The returned
// func releases provider resources.
func NewParser(ctx context.Context, cfg config.AIConfig) (CommandParser, func(), error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, nil, ErrNotConfigured
		}
		p, err := NewGeminiProvider(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, nil, err
		}
		return NewRetrying(p, cfg.MaxAttempts), p.Close, nil
	case "chat":
		if cfg.ChatKey == "" || cfg.ChatURL == "" {
			return nil, nil, ErrNotConfigured
		}
		p := NewChatProvider(cfg.ChatURL, cfg.ChatKey, cfg.ChatModel)
		return NewRetrying(p, cfg.MaxAttempts), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
