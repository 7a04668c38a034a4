// Package kvredis keeps dashboard state in Redis.
package kvredis

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "coinboard/internal/cache"
	"coinboard/pkg/storage"
)

var _ storage.Store = (*Store)(nil)

// Store maps storage keys onto namespaced Redis string keys.
type Store struct {
	rds      *redis.Redis
	instance string
}

// New wires a Redis-backed Store. instance scopes keys per dashboard.
func New(rds *redis.Redis, instance string) *Store {
	if instance == "" {
		instance = "default"
	}
	return &Store{rds: rds, instance: instance}
}

func (s *Store) key(k string) string {
	return cachekeys.StateKey(s.instance, k)
}

func (s *Store) Get(ctx context.Context, k string) (string, bool, error) {
	val, err := s.rds.GetCtx(ctx, s.key(k))
	if err != nil {
		return "", false, fmt.Errorf("kvredis: get %s: %w", k, err)
	}
	if val != "" {
		return val, true, nil
	}
	// GetCtx maps a missing key to "", so disambiguate stored empty strings.
	exists, err := s.rds.ExistsCtx(ctx, s.key(k))
	if err != nil {
		return "", false, fmt.Errorf("kvredis: exists %s: %w", k, err)
	}
	return "", exists, nil
}

func (s *Store) Set(ctx context.Context, k, value string) error {
	if err := s.rds.SetCtx(ctx, s.key(k), value); err != nil {
		return fmt.Errorf("kvredis: set %s: %w", k, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, k string) error {
	if _, err := s.rds.DelCtx(ctx, s.key(k)); err != nil {
		return fmt.Errorf("kvredis: del %s: %w", k, err)
	}
	return nil
}
