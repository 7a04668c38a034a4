// Package storage is the persistent key/value layer behind the dashboard
// state. Values are opaque strings; callers persist JSON documents.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Keys read and written by the coin table core.
const (
	KeyCoins               = "cgCoins"
	KeySelectedCoins       = "cgSelectedCoins"
	KeyArchivedCoins       = "cgArchivedCoins"
	KeyIconsCache          = "cgIconsCache"
	KeyIconsCacheTimestamp = "cgIconsCacheTimestamp"
	KeyLastUpdated         = "cgLastUpdated"
	KeyAPIKey              = "cgApiKey"
)

// ErrCorrupt marks a stored value that no longer decodes.
var ErrCorrupt = errors.New("storage: corrupt value")

// Store persists string values by key.
type Store interface {
	// Get returns the stored value; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// GetJSON decodes the value at key into out. ok is false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("storage: decode %s: %v: %w", key, err, ErrCorrupt)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Memory is an in-process Store, used by tests and the "memory" driver.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Snapshot copies all values.
func (m *Memory) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
