// Package kvfile keeps dashboard state in a single msgpack snapshot file,
// rewritten atomically on every mutation.
package kvfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"coinboard/pkg/storage"
)

const snapshotVersion = 1

var _ storage.Store = (*Store)(nil)

type snapshot struct {
	Version int               `msgpack:"version"`
	Values  map[string]string `msgpack:"values"`
}

// Store implements storage.Store on top of a msgpack file.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// Open loads path if it exists; a missing file starts empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("kvfile: path is required")
	}
	s := &Store{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("kvfile: read %s: %w", path, err)
	}
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("kvfile: decode %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("kvfile: %s has unsupported version %d", path, snap.Version)
	}
	if snap.Values != nil {
		s.values = snap.Values
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, k string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[k]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, k, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[k]
	s.values[k] = value
	if err := s.flushLocked(); err != nil {
		if had {
			s.values[k] = prev
		} else {
			delete(s.values, k)
		}
		return err
	}
	return nil
}

func (s *Store) Delete(_ context.Context, k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[k]
	if !had {
		return nil
	}
	delete(s.values, k)
	if err := s.flushLocked(); err != nil {
		s.values[k] = prev
		return err
	}
	return nil
}

func (s *Store) flushLocked() error {
	data, err := msgpack.Marshal(snapshot{Version: snapshotVersion, Values: s.values})
	if err != nil {
		return fmt.Errorf("kvfile: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("kvfile: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".coinboard-*.tmp")
	if err != nil {
		return fmt.Errorf("kvfile: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("kvfile: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kvfile: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("kvfile: rename: %w", err)
	}
	return nil
}
