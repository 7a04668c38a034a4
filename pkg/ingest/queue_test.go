package ingest

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinboard/pkg/coinset"
	"coinboard/pkg/market"
	"coinboard/pkg/resolver"
	"coinboard/pkg/storage"
)

type fakeThrottle struct {
	mu     sync.Mutex
	resets int
	waits  int
}

func (f *fakeThrottle) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeThrottle) Wait(ctx context.Context) error {
	f.mu.Lock()
	f.waits++
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeThrottle) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets, f.waits
}

type resolveFunc func(ctx context.Context, ticker string) (string, error)

type fakeResolver struct {
	mu      sync.Mutex
	calls   map[string]int
	resolve resolveFunc
	lookup  func(ticker string) (market.SearchCoin, error)
}

func (f *fakeResolver) Resolve(ctx context.Context, ticker string) (string, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[ticker]++
	fn := f.resolve
	f.mu.Unlock()
	return fn(ctx, ticker)
}

func (f *fakeResolver) Lookup(_ context.Context, ticker string) (market.SearchCoin, error) {
	if f.lookup == nil {
		return market.SearchCoin{}, resolver.ErrNotFound
	}
	return f.lookup(ticker)
}

func (f *fakeResolver) count(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ticker]
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeFetcher) FetchAll(context.Context) ([]market.Coin, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitDone(t *testing.T, q *Queue) {
	t.Helper()
	select {
	case <-q.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("queue run did not finish")
	}
}

func newQueue(t *testing.T, r *fakeResolver) (*Queue, *coinset.Set, *fakeThrottle, *fakeFetcher) {
	t.Helper()
	set := coinset.New(storage.NewMemory(), nil)
	th := &fakeThrottle{}
	fe := &fakeFetcher{}
	return New(r, set, fe, th), set, th, fe
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestSuccessfulRun(t *testing.T) {
	r := &fakeResolver{resolve: func(_ context.Context, ticker string) (string, error) {
		return map[string]string{"BTC": "bitcoin", "ETH": "ethereum"}[ticker], nil
	}}
	q, set, th, fe := newQueue(t, r)

	accepted, started := q.Start(context.Background(), []string{"BTC", "ETH"})
	require.True(t, started)
	require.Equal(t, []string{"BTC", "ETH"}, accepted)
	waitDone(t, q)

	require.Equal(t, []string{"bitcoin", "ethereum"}, set.Selected())
	require.Equal(t, 2, fe.count())
	resets, waits := th.counts()
	require.Equal(t, 1, resets)
	require.Equal(t, 4, waits)

	st := q.Status()
	require.Equal(t, Idle, st.State)
	require.False(t, st.Adding)
	require.Empty(t, st.Pending)
	require.Empty(t, st.Failed)
	require.Empty(t, st.Attempts)
	require.Empty(t, st.Display())
}

func TestStartSkipsTickersAlreadyInTable(t *testing.T) {
	r := &fakeResolver{resolve: func(context.Context, string) (string, error) { return "bitcoin", nil }}
	q, set, th, _ := newQueue(t, r)
	ctx := context.Background()
	_, _ = set.Select(ctx, "bitcoin")
	_, err := set.ReplaceCoins(ctx, []market.Coin{{ID: "bitcoin", Symbol: "BTC"}}, time.Now())
	require.NoError(t, err)

	accepted, started := q.Start(ctx, []string{"BTC"})
	require.False(t, started)
	require.Empty(t, accepted)
	require.Equal(t, Idle, q.Status().State)
	resets, _ := th.counts()
	require.Zero(t, resets)
}

func TestResolvedToSelectedIDIsSkippedWithoutWait(t *testing.T) {
	r := &fakeResolver{resolve: func(context.Context, string) (string, error) { return "bitcoin", nil }}
	q, set, th, fe := newQueue(t, r)
	_, _ = set.Select(context.Background(), "bitcoin")

	_, started := q.Start(context.Background(), []string{"XBT"})
	require.True(t, started)
	waitDone(t, q)

	require.Equal(t, []string{"bitcoin"}, set.Selected())
	require.Zero(t, fe.count())
	_, waits := th.counts()
	require.Zero(t, waits)
}

func TestRetryCeilingArchivesAfterFifthAttempt(t *testing.T) {
	var set *coinset.Set
	r := &fakeResolver{}
	r.resolve = func(context.Context, string) (string, error) {
		// Never archived before the budget is spent.
		if len(set.Archived()) != 0 {
			return "", assert.AnError
		}
		return "", resolver.ErrNotFound
	}
	q, s, _, fe := newQueue(t, r)
	set = s

	_, started := q.Start(context.Background(), []string{"ZZZ"})
	require.True(t, started)
	waitDone(t, q)

	require.Equal(t, DefaultMaxAttempts, r.count("ZZZ"))
	require.Equal(t, []coinset.ArchiveEntry{{ID: "failed-zzz", Symbol: "ZZZ", Name: "ZZZ"}}, set.Archived())
	require.Empty(t, set.Selected())
	require.Zero(t, fe.count())
	require.Empty(t, q.Status().Attempts)
}

func TestArchivedEntryUsesLookupWhenAvailable(t *testing.T) {
	r := &fakeResolver{
		resolve: func(context.Context, string) (string, error) { return "", assert.AnError },
		lookup: func(string) (market.SearchCoin, error) {
			return market.SearchCoin{ID: "zzz-coin", Symbol: "zzz", Name: "Zzz Coin"}, nil
		},
	}
	set := coinset.New(storage.NewMemory(), nil)
	q := New(r, set, &fakeFetcher{}, &fakeThrottle{}, WithMaxAttempts(2))

	q.Start(context.Background(), []string{"ZZZ"})
	waitDone(t, q)

	require.Equal(t, 2, r.count("ZZZ"))
	require.Equal(t, []coinset.ArchiveEntry{{ID: "zzz-coin", Symbol: "ZZZ", Name: "Zzz Coin"}}, set.Archived())
}

func TestFailedTickersAreRequeuedAfterPending(t *testing.T) {
	var mu sync.Mutex
	var order []string
	r := &fakeResolver{resolve: func(_ context.Context, ticker string) (string, error) {
		mu.Lock()
		order = append(order, ticker)
		n := len(order)
		mu.Unlock()
		if ticker == "AAA" && n == 1 {
			return "", assert.AnError
		}
		return strings.ToLower(ticker) + "-id", nil
	}}
	q, set, _, _ := newQueue(t, r)

	q.Start(context.Background(), []string{"AAA", "BBB"})
	waitDone(t, q)

	require.Equal(t, []string{"AAA", "BBB", "AAA"}, order)
	require.Equal(t, []string{"bbb-id", "aaa-id"}, set.Selected())
}

func TestPanickingResolverCountsAsFailure(t *testing.T) {
	calls := 0
	r := &fakeResolver{resolve: func(context.Context, string) (string, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return "bitcoin", nil
	}}
	q, set, _, _ := newQueue(t, r)

	q.Start(context.Background(), []string{"BTC"})
	waitDone(t, q)
	require.Equal(t, []string{"bitcoin"}, set.Selected())
	require.Equal(t, Idle, q.Status().State)
}

type panicFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *panicFetcher) FetchAll(context.Context) ([]market.Coin, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == 1 {
		panic("fetch boom")
	}
	return nil, nil
}

func TestPanickingRefreshKeepsRunGoing(t *testing.T) {
	r := &fakeResolver{resolve: func(_ context.Context, ticker string) (string, error) {
		return strings.ToLower(ticker) + "-id", nil
	}}
	set := coinset.New(storage.NewMemory(), nil)
	fe := &panicFetcher{}
	q := New(r, set, fe, &fakeThrottle{})

	q.Start(context.Background(), []string{"AAA", "BBB"})
	waitDone(t, q)

	require.Equal(t, []string{"aaa-id", "bbb-id"}, set.Selected())
	require.Equal(t, 1, r.count("AAA"))
	require.Equal(t, 1, r.count("BBB"))
	require.Empty(t, set.Archived())
}

func TestPanickingLookupStillArchivesTicker(t *testing.T) {
	r := &fakeResolver{
		resolve: func(_ context.Context, ticker string) (string, error) {
			if ticker == "ZZZ" {
				panic("resolve boom")
			}
			return "bitcoin", nil
		},
		lookup: func(string) (market.SearchCoin, error) { panic("lookup boom") },
	}
	set := coinset.New(storage.NewMemory(), nil)
	q := New(r, set, &fakeFetcher{}, &fakeThrottle{}, WithMaxAttempts(2))

	q.Start(context.Background(), []string{"ZZZ", "BTC"})
	waitDone(t, q)

	require.Equal(t, 2, r.count("ZZZ"))
	require.Equal(t, []coinset.ArchiveEntry{coinset.FailedEntry("ZZZ")}, set.Archived())
	require.Equal(t, []string{"bitcoin"}, set.Selected())
	require.Equal(t, Idle, q.Status().State)
}

func TestStopDiscardsStateAndLateResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := &fakeResolver{resolve: func(context.Context, string) (string, error) {
		close(entered)
		<-release
		return "bitcoin", nil
	}}
	q, set, _, fe := newQueue(t, r)

	_, started := q.Start(context.Background(), []string{"BTC", "ETH", "SOL"})
	require.True(t, started)
	<-entered

	st := q.Status()
	require.Equal(t, Running, st.State)
	require.Equal(t, "BTC", st.Current)
	require.Equal(t, []string{"ETH", "SOL"}, st.Pending)
	require.Equal(t, "Adding BTC | Queued: ETH, SOL", st.Display())

	require.True(t, q.Stop())
	require.False(t, q.Stop())
	st = q.Status()
	require.False(t, st.Adding)
	require.Empty(t, st.Pending)
	require.Empty(t, st.Failed)
	require.Empty(t, st.Attempts)
	require.Empty(t, st.Current)

	close(release)
	waitDone(t, q)
	require.Empty(t, set.Selected())
	require.Empty(t, set.Archived())
	require.Zero(t, fe.count())
}

func TestStartExtendsRunningQueue(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	r := &fakeResolver{resolve: func(_ context.Context, ticker string) (string, error) {
		if ticker == "BTC" {
			entered <- struct{}{}
			<-release
		}
		return strings.ToLower(ticker), nil
	}}
	q, set, th, _ := newQueue(t, r)

	q.Start(context.Background(), []string{"BTC", "ETH"})
	<-entered
	accepted, started := q.Start(context.Background(), []string{"ETH", "BTC", "SOL"})
	require.False(t, started)
	require.Equal(t, []string{"SOL"}, accepted)
	require.Equal(t, []string{"ETH", "SOL"}, q.Status().Pending)

	close(release)
	waitDone(t, q)
	require.Equal(t, []string{"btc", "eth", "sol"}, set.Selected())
	resets, _ := th.counts()
	require.Equal(t, 1, resets)
}

func TestStatusDisplay(t *testing.T) {
	st := Status{
		Adding:      true,
		Current:     "BTC",
		Failed:      []string{"ZZZ"},
		Attempts:    map[string]int{"BTC": 3},
		MaxAttempts: 5,
	}
	require.Equal(t, "Adding BTC (attempt 3/5) | Retrying: ZZZ", st.Display())
	require.Equal(t, "Adding tickers…", Status{Adding: true}.Display())
}
