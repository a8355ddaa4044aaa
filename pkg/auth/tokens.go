package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/dhis2-sre/im-console/pkg/model"
	"github.com/dhis2-sre/im-console/pkg/storage"
)

const (
	accessTokenKey  = "auth_token"
	refreshTokenKey = "refresh_token"
)

func NewTokens(tiers storage.Tiers) *Tokens {
	return &Tokens{tiers: tiers}
}

// Tokens persists the token pair of the session. A remembered pair lives in the durable tier,
// otherwise in the session tier. Reads prefer the durable tier.
type Tokens struct {
	tiers storage.Tiers
}

// Save stores the pair in the durable tier if remember is set and in the session tier otherwise. A
// pair stored in the other tier is removed so it can't shadow the new one.
func (t *Tokens) Save(ctx context.Context, pair model.Tokens, remember bool) error {
	store, other := t.tiers.Session, t.tiers.Durable
	if remember {
		store, other = t.tiers.Durable, t.tiers.Session
	}

	if err := remove(ctx, other); err != nil {
		return err
	}
	return save(ctx, store, pair)
}

// Replace stores a refreshed pair in the tier the current refresh token lives in. The session tier
// is used if there is no refresh token.
func (t *Tokens) Replace(ctx context.Context, pair model.Tokens) error {
	_, err := t.tiers.Durable.Get(ctx, refreshTokenKey)
	if err == nil {
		return save(ctx, t.tiers.Durable, pair)
	}
	if !errdef.IsNotFound(err) {
		return fmt.Errorf("failed to read refresh token: %v", err)
	}
	return save(ctx, t.tiers.Session, pair)
}

// Clear removes the pair from both tiers.
func (t *Tokens) Clear(ctx context.Context) error {
	return errors.Join(remove(ctx, t.tiers.Durable), remove(ctx, t.tiers.Session))
}

// AccessToken returns the stored access token or an empty string if there is none.
func (t *Tokens) AccessToken(ctx context.Context) (string, error) {
	return t.get(ctx, accessTokenKey)
}

// RefreshToken returns the stored refresh token or an empty string if there is none.
func (t *Tokens) RefreshToken(ctx context.Context) (string, error) {
	return t.get(ctx, refreshTokenKey)
}

func (t *Tokens) get(ctx context.Context, key string) (string, error) {
	for _, store := range []storage.Store{t.tiers.Durable, t.tiers.Session} {
		value, err := store.Get(ctx, key)
		if err == nil && value != "" {
			return value, nil
		}
		if err != nil && !errdef.IsNotFound(err) {
			return "", fmt.Errorf("failed to read %q: %v", key, err)
		}
	}
	return "", nil
}

func save(ctx context.Context, store storage.Store, pair model.Tokens) error {
	if err := store.Set(ctx, accessTokenKey, pair.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %v", err)
	}
	if err := store.Set(ctx, refreshTokenKey, pair.RefreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %v", err)
	}
	return nil
}

func remove(ctx context.Context, store storage.Store) error {
	return errors.Join(store.Delete(ctx, accessTokenKey), store.Delete(ctx, refreshTokenKey))
}
