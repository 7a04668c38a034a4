// Package ingest runs bulk ticker additions: one ticker at a time, paced by
// the shared adaptive throttle, with a bounded retry budget per ticker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/metric"
	"github.com/zeromicro/go-zero/core/threading"

	"coinboard/pkg/coinset"
	"coinboard/pkg/events"
	"coinboard/pkg/market"
	"coinboard/pkg/tickers"
)

// DefaultMaxAttempts is the per-ticker resolution budget within one run.
const DefaultMaxAttempts = 5

var errNoMatch = errors.New("ingest: no matching coin")

var outcomesTotal = metric.NewCounterVec(&metric.CounterVecOpts{
	Namespace: "coinboard",
	Subsystem: "ingest",
	Name:      "outcomes_total",
	Help:      "ticker ingestion step outcomes",
	Labels:    []string{"outcome"},
})

// Resolver maps tickers to coin ids.
type Resolver interface {
	Resolve(ctx context.Context, ticker string) (string, error)
	Lookup(ctx context.Context, ticker string) (market.SearchCoin, error)
}

// Fetcher refreshes the coin table after a successful add.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]market.Coin, error)
}

// Throttle paces the queue between network calls.
type Throttle interface {
	Reset()
	Wait(ctx context.Context) error
}

type Queue struct {
	resolver    Resolver
	set         *coinset.Set
	fetcher     Fetcher
	throttle    Throttle
	notifier    events.Notifier
	maxAttempts int

	mu       sync.Mutex
	state    State
	gen      uint64
	pending  []string
	failed   []string
	current  string
	attempts map[string]int
	stop     context.CancelFunc
	done     chan struct{}
}

// Option customises a Queue.
type Option func(*Queue)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithNotifier receives a queue status event on every change.
func WithNotifier(n events.Notifier) Option {
	return func(q *Queue) {
		if n != nil {
			q.notifier = n
		}
	}
}

func New(resolver Resolver, set *coinset.Set, fetcher Fetcher, throttle Throttle, opts ...Option) *Queue {
	q := &Queue{
		resolver:    resolver,
		set:         set,
		fetcher:     fetcher,
		throttle:    throttle,
		notifier:    events.Nop{},
		maxAttempts: DefaultMaxAttempts,
		attempts:    make(map[string]int),
		done:        closedChan(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start queues tokens that are not already in the coin table. When idle it
// resets the throttle and launches a run; when a run is active the new
// tokens extend it instead, skipping ones it already holds. accepted lists
// the tokens that were queued.
func (q *Queue) Start(ctx context.Context, tokens []string) (accepted []string, started bool) {
	filtered := tickers.Filter(tokens, q.set.HasSymbol)

	q.mu.Lock()
	if q.state != Idle {
		for _, t := range filtered {
			if t == q.current || slices.Contains(q.pending, t) || slices.Contains(q.failed, t) {
				continue
			}
			q.pending = append(q.pending, t)
			accepted = append(accepted, t)
		}
		status := q.statusLocked()
		q.mu.Unlock()
		if len(accepted) > 0 {
			q.publish(status)
		}
		return accepted, false
	}
	if len(filtered) == 0 {
		q.mu.Unlock()
		return nil, false
	}

	q.gen++
	gen := q.gen
	q.state = Running
	q.pending = slices.Clone(filtered)
	q.failed = nil
	q.current = ""
	q.attempts = make(map[string]int)
	// Network calls outlive the caller and are never cancelled by Stop;
	// waits are, so a stop takes effect before the next step.
	netCtx := context.WithoutCancel(ctx)
	waitCtx, cancel := context.WithCancel(netCtx)
	q.stop = cancel
	done := make(chan struct{})
	q.done = done
	q.throttle.Reset()
	status := q.statusLocked()
	q.mu.Unlock()

	logx.WithContext(ctx).Infof("ingest: run started gen=%d tickers=%s", gen, tickers.Join(filtered))
	q.publish(status)
	threading.GoSafe(func() {
		defer close(done)
		q.run(netCtx, waitCtx, gen)
	})
	return filtered, true
}

// Stop drops all transient state without archiving anything. An in-flight
// lookup is left to finish and its result is discarded.
func (q *Queue) Stop() bool {
	q.mu.Lock()
	if q.state == Idle {
		q.mu.Unlock()
		return false
	}
	q.gen++
	q.resetLocked()
	status := q.statusLocked()
	q.mu.Unlock()

	outcomesTotal.Inc("stopped")
	logx.Info("ingest: run stopped")
	q.publish(status)
	return true
}

// Done is closed when the most recently started run has exited.
func (q *Queue) Done() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done
}

// Status copies the transient queue state.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.statusLocked()
}

func (q *Queue) statusLocked() Status {
	return Status{
		State:       q.state,
		Adding:      q.state != Idle,
		Current:     q.current,
		Pending:     slices.Clone(q.pending),
		Failed:      slices.Clone(q.failed),
		Attempts:    maps.Clone(q.attempts),
		MaxAttempts: q.maxAttempts,
	}
}

func (q *Queue) resetLocked() {
	q.state = Idle
	q.pending = nil
	q.failed = nil
	q.current = ""
	q.attempts = make(map[string]int)
	if q.stop != nil {
		q.stop()
		q.stop = nil
	}
}

func (q *Queue) publish(status Status) {
	q.notifier.Notify(events.Event{Kind: events.KindQueueStatus, Status: status.Display()})
}

type stepKind int

const (
	stepStopped stepKind = iota
	stepDone
	stepRequeue
	stepTicker
)

func (q *Queue) run(ctx, waitCtx context.Context, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("ingest: run gen=%d panicked: %v", gen, r)
			q.mu.Lock()
			if q.gen == gen {
				q.resetLocked()
			}
			q.mu.Unlock()
		}
	}()

	for {
		kind, ticker := q.advance(gen)
		switch kind {
		case stepStopped:
			return
		case stepDone:
			logx.WithContext(ctx).Infof("ingest: run finished gen=%d", gen)
			return
		case stepRequeue:
			if !q.wait(waitCtx) {
				return
			}
		case stepTicker:
			if q.step(ctx, waitCtx, gen, ticker) && !q.wait(waitCtx) {
				return
			}
		}
	}
}

// advance pops the next ticker, requeues failed ones, or ends the run.
func (q *Queue) advance(gen uint64) (stepKind, string) {
	q.mu.Lock()
	if q.gen != gen || q.state == Idle {
		q.mu.Unlock()
		return stepStopped, ""
	}
	var kind stepKind
	var ticker string
	switch {
	case len(q.pending) > 0:
		ticker = q.pending[0]
		q.pending = q.pending[1:]
		q.current = ticker
		kind = stepTicker
	case len(q.failed) > 0:
		q.pending = q.failed
		q.failed = nil
		q.current = ""
		q.state = Draining
		kind = stepRequeue
	default:
		q.gen++
		q.resetLocked()
		kind = stepDone
	}
	status := q.statusLocked()
	q.mu.Unlock()
	q.publish(status)
	return kind, ticker
}

// step processes one ticker and reports whether a throttle wait follows.
func (q *Queue) step(ctx, waitCtx context.Context, gen uint64, ticker string) bool {
	if q.set.HasSymbol(ticker) {
		q.settle(gen, ticker)
		outcomesTotal.Inc("skipped")
		return false
	}

	attempt, live := q.bumpAttempt(gen, ticker)
	if !live {
		return false
	}
	wait, err := q.attempt(ctx, waitCtx, gen, ticker)
	if err == nil {
		return wait
	}
	return q.unresolved(ctx, waitCtx, gen, ticker, attempt, err)
}

// attempt resolves ticker and applies the result. A nil error means the
// ticker is settled. Any error, a recovered panic included, leaves the
// ticker to unresolved.
func (q *Queue) attempt(ctx, waitCtx context.Context, gen uint64, ticker string) (wait bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			wait, err = false, fmt.Errorf("ingest: step %s panicked: %v", ticker, r)
		}
	}()

	id, err := q.resolver.Resolve(ctx, ticker)
	if err != nil {
		return false, err
	}
	if id == "" {
		return false, errNoMatch
	}

	var (
		known  bool
		added  bool
		addErr error
	)
	applied := q.applyLive(gen, func() {
		if q.set.IsSelected(id) {
			known = true
			q.settleLocked(ticker)
			return
		}
		added, addErr = q.set.Select(ctx, id)
		if addErr == nil {
			q.settleLocked(ticker)
		}
	})
	switch {
	case !applied:
		q.dropLate(ctx, ticker, id)
		return false, nil
	case known:
		outcomesTotal.Inc("duplicate")
		logx.WithContext(ctx).Infof("ingest: ticker=%s resolved to selected id=%s, skipped", ticker, id)
		return false, nil
	case addErr != nil:
		return false, addErr
	}

	outcomesTotal.Inc("added")
	logx.WithContext(ctx).Infof("ingest: ticker=%s added id=%s new=%t", ticker, id, added)
	if !q.wait(waitCtx) {
		return false, nil
	}
	q.refresh(ctx, ticker)
	return true, nil
}

// unresolved files a failed attempt for retry, or archives the ticker once
// its budget is spent.
func (q *Queue) unresolved(ctx, waitCtx context.Context, gen uint64, ticker string, attempt int, cause error) bool {
	if attempt < q.maxAttempts {
		applied := q.applyLive(gen, func() {
			q.failed = append(q.failed, ticker)
			q.current = ""
		})
		if !applied {
			q.dropLate(ctx, ticker, "")
			return false
		}
		outcomesTotal.Inc("retry")
		logx.WithContext(ctx).Infof("ingest: ticker=%s attempt=%d/%d failed err=%v", ticker, attempt, q.maxAttempts, cause)
		q.publish(q.Status())
		return true
	}

	if !q.wait(waitCtx) {
		return false
	}
	entry := coinset.FailedEntry(ticker)
	if hit, err := q.lookup(ctx, ticker); err == nil && hit.ID != "" {
		entry = coinset.ArchiveEntry{ID: hit.ID, Symbol: strings.ToUpper(hit.Symbol), Name: hit.Name}
	}
	var archived bool
	var archiveErr error
	applied := q.applyLive(gen, func() {
		archived, archiveErr = q.set.ArchiveFailed(ctx, entry)
		q.settleLocked(ticker)
	})
	if !applied {
		q.dropLate(ctx, ticker, "")
		return false
	}
	outcomesTotal.Inc("archived")
	if archiveErr != nil {
		logx.WithContext(ctx).Errorf("ingest: archive ticker=%s id=%s err=%v", ticker, entry.ID, archiveErr)
	} else {
		logx.WithContext(ctx).Infof("ingest: ticker=%s archived id=%s new=%t after %d attempts", ticker, entry.ID, archived, attempt)
	}
	q.publish(q.Status())
	return true
}

// lookup names an archive entry. It is best-effort, so a panic is an error.
func (q *Queue) lookup(ctx context.Context, ticker string) (hit market.SearchCoin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingest: lookup %s panicked: %v", ticker, r)
		}
	}()
	return q.resolver.Lookup(ctx, ticker)
}

// refresh reloads the table after an add. Failures only get logged; the
// ticker is already in the table.
func (q *Queue) refresh(ctx context.Context, ticker string) {
	defer func() {
		if r := recover(); r != nil {
			logx.WithContext(ctx).Errorf("ingest: refresh after ticker=%s panicked: %v", ticker, r)
		}
	}()
	if _, err := q.fetcher.FetchAll(ctx); err != nil {
		logx.WithContext(ctx).Errorf("ingest: refresh after ticker=%s err=%v", ticker, err)
	}
}

func (q *Queue) bumpAttempt(gen uint64, ticker string) (int, bool) {
	q.mu.Lock()
	if q.gen != gen || q.state == Idle {
		q.mu.Unlock()
		return 0, false
	}
	q.attempts[ticker]++
	n := q.attempts[ticker]
	status := q.statusLocked()
	q.mu.Unlock()
	q.publish(status)
	return n, true
}

// applyLive runs fn under the queue lock only while run gen is current, so
// a Stop cannot interleave with applying a result.
func (q *Queue) applyLive(gen uint64, fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen || q.state == Idle {
		return false
	}
	fn()
	return true
}

func (q *Queue) settle(gen uint64, ticker string) {
	q.applyLive(gen, func() { q.settleLocked(ticker) })
}

func (q *Queue) settleLocked(ticker string) {
	delete(q.attempts, ticker)
	if q.current == ticker {
		q.current = ""
	}
}

func (q *Queue) dropLate(ctx context.Context, ticker, id string) {
	outcomesTotal.Inc("dropped")
	logx.WithContext(ctx).Infof("ingest: dropped late result ticker=%s id=%s", ticker, id)
}

func (q *Queue) wait(ctx context.Context) bool {
	return q.throttle.Wait(ctx) == nil
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
