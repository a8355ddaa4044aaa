// Package auth signs the user in and out and keeps the token pair of the session.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/internal/validation"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
)

type client interface {
	Get(ctx context.Context, path string, out any, options ...gateway.RequestOption) error
	Post(ctx context.Context, path string, body, out any, options ...gateway.RequestOption) error
}

type Option func(*Service)

// WithClock sets the clock token expiration is checked against.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(logger *slog.Logger, client client, tokens *Tokens, options ...Option) *Service {
	s := &Service{
		logger: logger,
		client: client,
		tokens: tokens,
		now:    time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

type Service struct {
	logger *slog.Logger
	client client
	tokens *Tokens
	now    func() time.Time
}

// Login signs the user in and stores the issued token pair. The pair survives a restart if
// credentials.Remember is set.
func (s Service) Login(ctx context.Context, credentials model.LoginRequest) (model.LoginResponse, error) {
	if err := validation.Struct(credentials); err != nil {
		return model.LoginResponse{}, err
	}

	var response model.LoginResponse
	if err := s.client.Post(ctx, "/auth/login", credentials, &response); err != nil {
		return model.LoginResponse{}, err
	}

	pair := model.Tokens{
		AccessToken:  response.Token,
		RefreshToken: response.RefreshToken,
		ExpiresIn:    response.ExpiresIn,
	}
	if err := s.tokens.Save(ctx, pair, credentials.Remember); err != nil {
		return model.LoginResponse{}, err
	}

	s.logger.InfoContext(ctx, "Signed in", "username", response.User.Username, "remember", credentials.Remember)
	return response, nil
}

// Logout signs the user out. The stored tokens are removed even if the backend call fails.
func (s Service) Logout(ctx context.Context) error {
	err := s.client.Post(ctx, "/auth/logout", nil, nil)
	return errors.Join(err, s.tokens.Clear(ctx))
}

// Refresh exchanges the refresh token for a new pair which is stored in the tier of the old one.
func (s Service) Refresh(ctx context.Context) (model.Tokens, error) {
	refreshToken, err := s.tokens.RefreshToken(ctx)
	if err != nil {
		return model.Tokens{}, err
	}
	if refreshToken == "" {
		return model.Tokens{}, errdef.NewMissingCredential("no refresh token available")
	}

	var pair model.Tokens
	body := map[string]string{"refreshToken": refreshToken}
	if err := s.client.Post(ctx, "/auth/refresh", body, &pair); err != nil {
		return model.Tokens{}, err
	}

	if err := s.tokens.Replace(ctx, pair); err != nil {
		return model.Tokens{}, err
	}
	return pair, nil
}

func (s Service) Me(ctx context.Context) (model.User, error) {
	var user model.User
	err := s.client.Get(ctx, "/auth/me", &user)
	return user, err
}

func (s Service) ChangePassword(ctx context.Context, request model.ChangePasswordRequest) error {
	if err := validation.Struct(request); err != nil {
		return err
	}
	return s.client.Post(ctx, "/auth/change-password", request, nil)
}

// Claims returns the claims of the stored access token.
func (s Service) Claims(ctx context.Context) (model.Claims, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return model.Claims{}, err
	}
	if token == "" {
		return model.Claims{}, errdef.NewMissingCredential("no access token available")
	}
	return ParseClaims(token)
}

// IsAuthenticated returns true if an access token is stored which hasn't expired yet.
func (s Service) IsAuthenticated(ctx context.Context) bool {
	claims, err := s.Claims(ctx)
	if err != nil {
		return false
	}
	return claims.ExpiresAt.After(s.now())
}

// HasRole returns true if the access token carries role or the administrator role. It only decides
// what the console shows, the backend authorizes every call on its own.
func (s Service) HasRole(ctx context.Context, role string) bool {
	claims, err := s.Claims(ctx)
	if err != nil {
		return false
	}
	return claims.Role == role || claims.Role == model.AdministratorRole
}

func (s Service) IsAdmin(ctx context.Context) bool {
	return s.HasRole(ctx, model.AdministratorRole)
}
