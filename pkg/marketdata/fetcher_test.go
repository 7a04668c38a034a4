package marketdata

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coinboard/pkg/coinset"
	"coinboard/pkg/market"
	"coinboard/pkg/storage"
)

type fakeMarkets struct {
	coins []market.Coin
	err   error
	reqs  []market.MarketsRequest
}

func (f *fakeMarkets) Markets(_ context.Context, req market.MarketsRequest) ([]market.Coin, error) {
	f.reqs = append(f.reqs, req)
	return f.coins, f.err
}

type countingThrottle struct{ limited, success int }

func (c *countingThrottle) OnRateLimited() { c.limited++ }
func (c *countingThrottle) OnSuccess()     { c.success++ }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func setup(t *testing.T, markets *fakeMarkets) (*Fetcher, *coinset.Set, *storage.Memory, *countingThrottle, *clock) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	set := coinset.New(store, nil)
	for _, id := range []string{"bitcoin", "ethereum"} {
		_, err := set.Select(ctx, id)
		require.NoError(t, err)
	}
	_, err := set.AppendSelected(ctx, "failed-zzz")
	require.NoError(t, err)
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	throttle := &countingThrottle{}
	icons := NewIconCache(store, clk.Now)
	return NewFetcher(markets, set, throttle, icons, WithClock(clk.Now)), set, store, throttle, clk
}

func TestFetchAllReplacesCoins(t *testing.T) {
	markets := &fakeMarkets{coins: []market.Coin{
		{ID: "ethereum", Symbol: "ETH", Image: "https://img/eth.png"},
		{ID: "bitcoin", Symbol: "BTC", Image: "https://img/btc.png"},
	}}
	f, set, store, throttle, _ := setup(t, markets)
	set.SetRowSelection([]string{"bitcoin"})

	coins, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, coins, 2)
	require.Equal(t, "bitcoin", coins[0].ID)
	require.Equal(t, 1, throttle.success)

	require.Len(t, markets.reqs, 1)
	require.Equal(t, []string{"bitcoin", "ethereum"}, markets.reqs[0].IDs)
	require.Equal(t, market.DefaultPriceChangeWindows, markets.reqs[0].PriceChangeWindows)
	require.Empty(t, set.RowSelection())

	raw, ok, _ := store.Get(context.Background(), storage.KeyLastUpdated)
	require.True(t, ok)
	require.Equal(t, "1700000000000", raw)

	var icons map[string]string
	ok, err = storage.GetJSON(context.Background(), store, storage.KeyIconsCache, &icons)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://img/btc.png", icons["bitcoin"])
}

func TestFetchAllRateLimited(t *testing.T) {
	markets := &fakeMarkets{err: &market.StatusError{Provider: "coingecko", StatusCode: http.StatusTooManyRequests}}
	f, set, _, throttle, _ := setup(t, markets)

	_, err := f.FetchAll(context.Background())
	require.ErrorIs(t, err, market.ErrRateLimited)
	require.Equal(t, 1, throttle.limited)
	require.Zero(t, throttle.success)
	require.Contains(t, set.Snapshot().TableError, "Rate limited")
}

func TestFetchAllOtherFailureSetsTableError(t *testing.T) {
	f, set, _, throttle, _ := setup(t, &fakeMarkets{err: errors.New("dial tcp: refused")})

	_, err := f.FetchAll(context.Background())
	require.Error(t, err)
	require.Zero(t, throttle.limited)
	require.Contains(t, set.Snapshot().TableError, "dial tcp: refused")
}

func TestFetchAllWithoutFetchableIDsSkipsRequest(t *testing.T) {
	markets := &fakeMarkets{}
	store := storage.NewMemory()
	set := coinset.New(store, nil)
	_, _ = set.AppendSelected(context.Background(), "failed-zzz")
	f := NewFetcher(markets, set, &countingThrottle{}, nil)

	coins, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, coins)
	require.Empty(t, markets.reqs)
}

func TestIconCacheWritesAtMostHourly(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	clk := &clock{t: time.UnixMilli(0).Add(24 * time.Hour)}
	cache := NewIconCache(store, clk.Now)
	require.NoError(t, cache.Load(ctx))

	wrote, err := cache.Update(ctx, []market.Coin{{ID: "a", Image: "a.png"}})
	require.NoError(t, err)
	require.True(t, wrote)

	clk.t = clk.t.Add(30 * time.Minute)
	wrote, err = cache.Update(ctx, []market.Coin{{ID: "b", Image: "b.png"}})
	require.NoError(t, err)
	require.False(t, wrote)
	url, ok := cache.Icon("b")
	require.True(t, ok)
	require.Equal(t, "b.png", url)

	reloaded := NewIconCache(store, clk.Now)
	require.NoError(t, reloaded.Load(ctx))
	_, ok = reloaded.Icon("b")
	require.False(t, ok)

	clk.t = clk.t.Add(31 * time.Minute)
	wrote, err = cache.Update(ctx, nil)
	require.NoError(t, err)
	require.True(t, wrote)
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, map[string]string{"a": "a.png", "b": "b.png"}, reloaded.All())
}
