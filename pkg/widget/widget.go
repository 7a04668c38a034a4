// Package widget ties the coin table pieces together: input routing,
// manual add/restore, the API key, and the startup sequence gated on unlock.
package widget

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/pkg/coinset"
	"coinboard/pkg/ingest"
	"coinboard/pkg/market"
	"coinboard/pkg/marketdata"
	"coinboard/pkg/storage"
	"coinboard/pkg/tickers"
)

var (
	ErrUnresolved        = errors.New("widget: archived ticker still does not resolve")
	ErrAlreadySelected   = errors.New("widget: coin is already in the table")
	ErrRestoreRolledBack = errors.New("widget: restored coin is not fetchable")
	ErrArchivedElsewhere = errors.New("widget: ticker resolves to another archived coin")
)

// Resolver maps tickers to coin ids.
type Resolver interface {
	Resolve(ctx context.Context, ticker string) (string, error)
}

// Searcher backs the suggestion list for single-word input.
type Searcher interface {
	Search(ctx context.Context, query string) ([]market.SearchCoin, error)
}

// Waiter paces calls made outside the ingest queue.
type Waiter interface {
	Wait(ctx context.Context) error
}

// KeySetter is implemented by providers that accept a runtime API key.
type KeySetter interface {
	SetAPIKey(key string)
}

// Deps are the collaborators a Widget drives.
type Deps struct {
	Set      *coinset.Set
	Queue    *ingest.Queue
	Resolver Resolver
	Searcher Searcher
	Fetcher  *marketdata.Fetcher
	Icons    *marketdata.IconCache
	Secure   *storage.Secure
	Keys     KeySetter
	Throttle Waiter
}

// InputMode says how a line of input was routed.
type InputMode string

const (
	ModeIgnored InputMode = "ignored"
	ModeBulk    InputMode = "bulk"
	ModeSearch  InputMode = "search"
)

// InputResult reports what HandleInput did.
type InputResult struct {
	Mode        InputMode           `json:"mode"`
	Tickers     []string            `json:"tickers,omitempty"`
	Accepted    []string            `json:"accepted,omitempty"`
	Started     bool                `json:"started"`
	Suggestions []market.SearchCoin `json:"suggestions,omitempty"`
}

type Widget struct {
	Deps
	refreshEvery time.Duration
}

// Option customises a Widget.
type Option func(*Widget)

// WithRefreshInterval enables a periodic table refresh after unlock.
func WithRefreshInterval(d time.Duration) Option {
	return func(w *Widget) {
		w.refreshEvery = d
	}
}

func New(deps Deps, opts ...Option) *Widget {
	w := &Widget{Deps: deps}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Init loads persisted state, repairs archive overlap and applies the
// stored API key.
func (w *Widget) Init(ctx context.Context) error {
	if err := w.Set.Load(ctx); err != nil {
		return err
	}
	if _, err := w.Set.Reconcile(ctx); err != nil {
		return err
	}
	if w.Icons != nil {
		if err := w.Icons.Load(ctx); err != nil {
			logx.WithContext(ctx).Errorf("widget: icon cache unreadable err=%v", err)
		}
	}
	if w.Secure != nil && w.Keys != nil {
		if key := w.Secure.LoadSecure(ctx, storage.KeyAPIKey); key != "" {
			w.Keys.SetAPIKey(key)
		}
	}
	return nil
}

// Reset stops any ingestion run and reloads state from storage.
func (w *Widget) Reset(ctx context.Context) error {
	w.Queue.Stop()
	return w.Init(ctx)
}

// Run performs the first fetch once unlocked fires, then refreshes
// periodically if configured. It returns when ctx is done.
func (w *Widget) Run(ctx context.Context, unlocked <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-unlocked:
	}
	logx.WithContext(ctx).Info("widget: unlocked, loading market data")
	if _, err := w.Fetcher.FetchAll(ctx); err != nil {
		logx.WithContext(ctx).Errorf("widget: initial fetch err=%v", err)
	}
	if w.refreshEvery <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(w.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// A running ingest refreshes after every add.
			if w.Queue.Status().Adding {
				continue
			}
			if _, err := w.Fetcher.FetchAll(ctx); err != nil {
				logx.WithContext(ctx).Errorf("widget: periodic fetch err=%v", err)
			}
		}
	}
}

// HandleInput routes search box text: delimited lists go to the ingest
// queue, single words to search suggestions.
func (w *Widget) HandleInput(ctx context.Context, input string) (InputResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return InputResult{Mode: ModeIgnored}, nil
	}
	if !tickers.IsBulkMode(input) {
		suggestions, err := w.Suggest(ctx, input)
		if err != nil {
			return InputResult{Mode: ModeSearch}, err
		}
		return InputResult{Mode: ModeSearch, Suggestions: suggestions}, nil
	}

	parsed := tickers.Parse(input)
	if len(parsed) == 0 {
		return InputResult{Mode: ModeIgnored}, nil
	}
	accepted, started := w.Queue.Start(ctx, parsed)
	return InputResult{Mode: ModeBulk, Tickers: parsed, Accepted: accepted, Started: started}, nil
}

// Suggest searches for query and hides coins already in the table.
func (w *Widget) Suggest(ctx context.Context, query string) ([]market.SearchCoin, error) {
	hits, err := w.Searcher.Search(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("widget: search %q: %w", query, err)
	}
	selected := w.Set.Selected()
	return slices.DeleteFunc(hits, func(c market.SearchCoin) bool {
		return slices.Contains(selected, c.ID)
	}), nil
}

// AddCoin adds a coin picked from suggestions and refreshes the table.
// A failed refresh does not undo the add.
func (w *Widget) AddCoin(ctx context.Context, id string) (bool, error) {
	added, err := w.Set.Select(ctx, id)
	if err != nil || !added {
		return added, err
	}
	if _, err := w.Fetcher.FetchAll(ctx); err != nil {
		logx.WithContext(ctx).Errorf("widget: refresh after add id=%s err=%v", id, err)
	}
	return true, nil
}

// Restore moves an archived coin back to the table. failed- entries are
// re-resolved by symbol first. The coin must show up in the refreshed
// data, otherwise the restore is rolled back.
func (w *Widget) Restore(ctx context.Context, id string) (string, error) {
	entry, pos, ok := w.Set.ArchivedEntry(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", coinset.ErrNotArchived, id)
	}
	target := entry.ID
	if entry.Synthetic() {
		resolved, err := w.Resolver.Resolve(ctx, entry.Symbol)
		if waitErr := w.wait(ctx); waitErr != nil {
			return "", waitErr
		}
		if err != nil || resolved == "" {
			logx.WithContext(ctx).Infof("widget: restore id=%s unresolved err=%v", id, err)
			return "", fmt.Errorf("%w: %s", ErrUnresolved, entry.Symbol)
		}
		target = resolved
	}
	if w.Set.IsSelected(target) {
		return target, fmt.Errorf("%w: %s", ErrAlreadySelected, target)
	}
	if target != entry.ID {
		// failed- placeholders are not merged into a real archived entry.
		if _, _, dup := w.Set.ArchivedEntry(target); dup {
			return target, fmt.Errorf("%w: %s", ErrArchivedElsewhere, target)
		}
	}

	if err := w.Set.Unarchive(ctx, entry, target); err != nil {
		return "", err
	}
	coins, err := w.Fetcher.FetchAll(ctx)
	if err == nil && slices.ContainsFunc(coins, func(c market.Coin) bool { return c.ID == target }) {
		logx.WithContext(ctx).Infof("widget: restored id=%s as=%s", id, target)
		return target, nil
	}

	if rbErr := w.Set.RollbackRestore(ctx, entry, pos, target); rbErr != nil {
		logx.WithContext(ctx).Errorf("widget: rollback restore id=%s err=%v", id, rbErr)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRestoreRolledBack, target, err)
	}
	return "", fmt.Errorf("%w: %s", ErrRestoreRolledBack, target)
}

func (w *Widget) wait(ctx context.Context) error {
	if w.Throttle == nil {
		return nil
	}
	return w.Throttle.Wait(ctx)
}

// SaveAPIKey stores the key in the secure store and applies it.
// An empty key removes it.
func (w *Widget) SaveAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	var err error
	if key == "" {
		err = w.Secure.RemoveSecure(ctx, storage.KeyAPIKey)
	} else {
		err = w.Secure.SaveSecure(ctx, storage.KeyAPIKey, key)
	}
	if err != nil {
		return fmt.Errorf("widget: store api key: %w", err)
	}
	if w.Keys != nil {
		w.Keys.SetAPIKey(key)
	}
	return nil
}

// HasAPIKey reports whether a key is stored.
func (w *Widget) HasAPIKey(ctx context.Context) bool {
	return w.Secure != nil && w.Secure.HasSecure(ctx, storage.KeyAPIKey)
}
