// Package marketdata refreshes the coin table with one bulk markets call.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/pkg/coinset"
	"coinboard/pkg/market"
)

// MarketsClient is the subset of market.Provider the fetcher needs.
type MarketsClient interface {
	Markets(ctx context.Context, req market.MarketsRequest) ([]market.Coin, error)
}

// Throttle receives the outcome of every markets call.
type Throttle interface {
	OnRateLimited()
	OnSuccess()
}

type Fetcher struct {
	markets  MarketsClient
	set      *coinset.Set
	throttle Throttle
	icons    *IconCache
	now      func() time.Time
	windows  []string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock overrides time.Now for the last-updated stamp.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// WithPriceChangeWindows overrides the requested percent-change windows.
func WithPriceChangeWindows(windows []string) Option {
	return func(f *Fetcher) {
		if len(windows) > 0 {
			f.windows = windows
		}
	}
}

func NewFetcher(markets MarketsClient, set *coinset.Set, throttle Throttle, icons *IconCache, opts ...Option) *Fetcher {
	f := &Fetcher{
		markets:  markets,
		set:      set,
		throttle: throttle,
		icons:    icons,
		now:      time.Now,
		windows:  market.DefaultPriceChangeWindows,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll requests every fetchable selected id in one call and installs
// the result as the new coin list. Failures set the table error and are
// returned; the fetcher never retries on its own.
func (f *Fetcher) FetchAll(ctx context.Context) ([]market.Coin, error) {
	ids := f.set.FetchableIDs()
	coins := []market.Coin{}
	if len(ids) > 0 {
		var err error
		coins, err = f.markets.Markets(ctx, market.MarketsRequest{IDs: ids, PriceChangeWindows: f.windows})
		if err != nil {
			if market.IsRateLimited(err) {
				f.throttle.OnRateLimited()
				f.set.SetTableError("Rate limited by CoinGecko. Try again shortly.")
			} else {
				f.set.SetTableError(fmt.Sprintf("Failed to load market data: %v", err))
			}
			logx.WithContext(ctx).Errorf("marketdata: fetch ids=%d err=%v", len(ids), err)
			return nil, fmt.Errorf("marketdata: fetch: %w", err)
		}
		f.throttle.OnSuccess()
	}

	installed, err := f.set.ReplaceCoins(ctx, coins, f.now())
	if err != nil {
		return installed, err
	}
	if f.icons != nil {
		if _, err := f.icons.Update(ctx, installed); err != nil {
			logx.WithContext(ctx).Errorf("marketdata: icon cache err=%v", err)
		}
	}
	logx.WithContext(ctx).Debugf("marketdata: fetched requested=%d received=%d", len(ids), len(installed))
	return installed, nil
}
