package storage

import (
	"context"
	"encoding/base64"
	"strings"
)

const (
	securePrefix = "sec_"
	secureSalt   = "coinboard-obfuscation-v1"
)

// Secure keeps values such as API keys out of plain sight in the backing
// store. The encoding is reversible obfuscation, not encryption.
type Secure struct {
	store Store
}

// NewSecure wraps store.
func NewSecure(store Store) *Secure {
	return &Secure{store: store}
}

// SaveSecure stores an obfuscated copy of value.
func (s *Secure) SaveSecure(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, securePrefix+key, encode(value))
}

// LoadSecure returns the decoded value, or "" when absent or unreadable.
func (s *Secure) LoadSecure(ctx context.Context, key string) string {
	raw, ok, err := s.store.Get(ctx, securePrefix+key)
	if err != nil || !ok {
		return ""
	}
	value, ok := decode(raw)
	if !ok {
		return ""
	}
	return value
}

// RemoveSecure deletes the value.
func (s *Secure) RemoveSecure(ctx context.Context, key string) error {
	return s.store.Delete(ctx, securePrefix+key)
}

// HasSecure reports whether a non-empty value is stored.
func (s *Secure) HasSecure(ctx context.Context, key string) bool {
	return s.LoadSecure(ctx, key) != ""
}

func encode(value string) string {
	return base64.StdEncoding.EncodeToString(xor([]byte(value)))
}

func decode(raw string) (string, bool) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return string(xor(data)), true
}

func xor(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ secureSalt[i%len(secureSalt)]
	}
	return out
}
