package auth

import (
	"context"
	"log/slog"

	"github.com/dhis2-sre/im-console/pkg/event"
)

const sessionExpiredMessage = "Session expired. Please sign in again."

func NewSession(logger *slog.Logger, tokens *Tokens, broker *event.Broker) *Session {
	return &Session{
		logger: logger,
		tokens: tokens,
		broker: broker,
	}
}

// Session supplies the gateway with the access token and ends the session once the backend
// rejects it.
type Session struct {
	logger *slog.Logger
	tokens *Tokens
	broker *event.Broker
}

func (s *Session) AccessToken(ctx context.Context) (string, error) {
	return s.tokens.AccessToken(ctx)
}

// Invalidate removes the token pair from both tiers and asks subscribers to return to the login
// surface.
func (s *Session) Invalidate(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear tokens", "error", err)
	}
	s.broker.Publish(event.Event{
		Type:    event.TypeSessionExpired,
		Message: sessionExpiredMessage,
	})
}
