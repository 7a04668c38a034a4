package marketdata

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/pkg/market"
	"coinboard/pkg/storage"
)

// IconWriteInterval bounds how often the icon map is written through.
const IconWriteInterval = time.Hour

// IconCache remembers icon URLs by coin id.
type IconCache struct {
	store storage.Store
	now   func() time.Time

	mu        sync.RWMutex
	icons     map[string]string
	writtenAt time.Time
}

func NewIconCache(store storage.Store, now func() time.Time) *IconCache {
	if now == nil {
		now = time.Now
	}
	return &IconCache{store: store, now: now, icons: make(map[string]string)}
}

// Load restores the cached map and its write timestamp.
func (c *IconCache) Load(ctx context.Context) error {
	icons := make(map[string]string)
	if _, err := storage.GetJSON(ctx, c.store, storage.KeyIconsCache, &icons); err != nil {
		return fmt.Errorf("marketdata: load icons: %w", err)
	}
	raw, ok, err := c.store.Get(ctx, storage.KeyIconsCacheTimestamp)
	if err != nil {
		return fmt.Errorf("marketdata: load icons timestamp: %w", err)
	}
	if icons == nil {
		icons = make(map[string]string)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.icons = icons
	c.writtenAt = time.Time{}
	if ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.writtenAt = time.UnixMilli(ms)
		}
	}
	return nil
}

// Update merges coin icons and writes the map through when the last write
// is older than IconWriteInterval. wrote reports whether it did.
func (c *IconCache) Update(ctx context.Context, coins []market.Coin) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, coin := range coins {
		if coin.ID != "" && coin.Image != "" {
			c.icons[coin.ID] = coin.Image
		}
	}
	now := c.now()
	if !c.writtenAt.IsZero() && now.Sub(c.writtenAt) < IconWriteInterval {
		return false, nil
	}
	if err := storage.SetJSON(ctx, c.store, storage.KeyIconsCache, c.icons); err != nil {
		return false, err
	}
	if err := c.store.Set(ctx, storage.KeyIconsCacheTimestamp, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return false, fmt.Errorf("marketdata: store icons timestamp: %w", err)
	}
	c.writtenAt = now
	logx.WithContext(ctx).Debugf("marketdata: icon cache written entries=%d", len(c.icons))
	return true, nil
}

// Icon returns the cached URL for id.
func (c *IconCache) Icon(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.icons[id]
	return url, ok
}

// All copies the cached map.
func (c *IconCache) All() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.icons)
}
