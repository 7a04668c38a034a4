// Package resolver turns a display ticker into a provider coin id.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/pkg/market"
)

// ErrNotFound reports a successful search without any usable result.
var ErrNotFound = errors.New("resolver: no matching coin")

// Searcher is the subset of market.Provider the resolver needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]market.SearchCoin, error)
}

// Throttle receives the outcome of every search call.
type Throttle interface {
	OnRateLimited()
	OnSuccess()
}

type Resolver struct {
	search   Searcher
	throttle Throttle
}

func New(search Searcher, throttle Throttle) *Resolver {
	return &Resolver{search: search, throttle: throttle}
}

// Resolve returns the id for ticker. Any error means "no id" to callers;
// market.IsRateLimited and ErrNotFound tell the cases apart.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (string, error) {
	hit, err := r.Lookup(ctx, ticker)
	if err != nil {
		return "", err
	}
	return hit.ID, nil
}

// Lookup returns the best search hit for ticker, used both for resolution
// and to label archive entries.
func (r *Resolver) Lookup(ctx context.Context, ticker string) (market.SearchCoin, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return market.SearchCoin{}, ErrNotFound
	}
	coins, err := r.search.Search(ctx, ticker)
	if err != nil {
		if market.IsRateLimited(err) {
			r.throttle.OnRateLimited()
			logx.WithContext(ctx).Infof("resolver: rate limited ticker=%s", ticker)
		} else {
			logx.WithContext(ctx).Errorf("resolver: search ticker=%s err=%v", ticker, err)
		}
		return market.SearchCoin{}, fmt.Errorf("resolver: search %s: %w", ticker, err)
	}
	r.throttle.OnSuccess()
	hit, ok := market.BestMatch(coins, ticker)
	if !ok {
		return market.SearchCoin{}, ErrNotFound
	}
	return hit, nil
}
