// Package storage provides the key/value stores local state is persisted in. State is kept in two
// named tiers: a durable tier surviving restarts and a session tier which lives as long as the
// process does. Writers aren't coordinated, the last write to a key wins.
package storage

import (
	"context"
)

// Store is a string key/value store. Get returns an error satisfying [errdef.IsNotFound] if the
// key doesn't exist.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Tiers groups the durable and the session scoped stores.
type Tiers struct {
	Durable Store
	Session Store
}

// NewMemoryTiers returns tiers which are both backed by memory. Mostly useful in tests.
func NewMemoryTiers() Tiers {
	return Tiers{
		Durable: NewMemory(),
		Session: NewMemory(),
	}
}
