package storage

import (
	"context"
	"sync"

	"github.com/dhis2-sre/im-console/internal/errdef"
)

func NewMemory() *memory {
	return &memory{values: make(map[string]string)}
}

type memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func (m *memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return "", errdef.NewNotFound("key %q doesn't exist", key)
	}
	return value, nil
}

func (m *memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
