package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/spf13/afero"
)

// NewFile returns a store persisting all keys in a single JSON document at path. The document is
// re-read on every operation so writes from other processes are observed.
func NewFile(fs afero.Fs, path string) *file {
	return &file{fs: fs, path: path}
}

type file struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

func (f *file) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}

	value, ok := values[key]
	if !ok {
		return "", errdef.NewNotFound("key %q doesn't exist", key)
	}
	return value, nil
}

func (f *file) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}

	values[key] = value
	return f.write(values)
}

func (f *file) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}

	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.write(values)
}

func (f *file) read() (map[string]string, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %q: %v", f.path, err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse state file %q: %v", f.path, err)
	}
	return values, nil
}

func (f *file) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %v", err)
	}

	return afero.WriteFile(f.fs, f.path, data, 0o600)
}
