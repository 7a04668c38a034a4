package svc

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	"coinboard/internal/config"
	"coinboard/internal/persistence/kvfile"
	"coinboard/internal/persistence/kvredis"
	"coinboard/internal/persistence/kvsql"
	"coinboard/internal/stream"
	"coinboard/pkg/coinset"
	"coinboard/pkg/events"
	"coinboard/pkg/ingest"
	marketpkg "coinboard/pkg/market"
	_ "coinboard/pkg/market/coingecko"
	"coinboard/pkg/marketdata"
	"coinboard/pkg/resolver"
	"coinboard/pkg/storage"
	"coinboard/pkg/throttle"
	"coinboard/pkg/widget"
)

type ServiceContext struct {
	Config config.Config

	Store    storage.Store
	Events   *events.Broadcaster
	Stream   *stream.Hub
	Throttle *throttle.Controller

	MarketConfig    *marketpkg.Config
	MarketProviders map[string]marketpkg.Provider
	DefaultMarket   marketpkg.Provider

	Set     *coinset.Set
	Queue   *ingest.Queue
	Fetcher *marketdata.Fetcher
	Icons   *marketdata.IconCache
	Widget  *widget.Widget

	unlockOnce sync.Once
	unlocked   chan struct{}
	closers    []func()
}

func MustNewServiceContext(c config.Config) *ServiceContext {
	svc, err := NewServiceContext(context.Background(), c)
	logx.Must(err)
	return svc
}

// NewServiceContext builds the storage backend, the CoinGecko provider and
// the ingestion core on top of them. Widget.Init is left to the caller.
func NewServiceContext(ctx context.Context, c config.Config) (*ServiceContext, error) {
	svc := &ServiceContext{
		Config:   c,
		Events:   events.NewBroadcaster(),
		unlocked: make(chan struct{}),
	}
	svc.Stream = stream.NewHub(svc.Events)

	store, err := svc.openStore(ctx)
	if err != nil {
		return nil, err
	}
	svc.Store = store

	marketCfg, err := c.MarketConfig()
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("load market config: %w", err)
	}
	providers, err := marketCfg.BuildProviders()
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("build market providers: %w", err)
	}
	name, pc, ok := marketCfg.DefaultProvider()
	if !ok {
		svc.Close()
		return nil, fmt.Errorf("market config: no default provider")
	}
	def := providers[name]
	svc.MarketConfig = marketCfg
	svc.MarketProviders = providers
	svc.DefaultMarket = def

	svc.Throttle = throttle.New(throttle.Config{
		Base:        c.Throttle.Base,
		Max:         c.Throttle.Max,
		QuietWindow: c.Throttle.QuietWindow,
	})

	res := resolver.New(def, svc.Throttle)
	svc.Set = coinset.New(store, svc.Events)
	svc.Icons = marketdata.NewIconCache(store, nil)
	svc.Fetcher = marketdata.NewFetcher(def, svc.Set, svc.Throttle, svc.Icons,
		marketdata.WithPriceChangeWindows(pc.PriceChangeWindows))
	svc.Queue = ingest.New(res, svc.Set, svc.Fetcher, svc.Throttle,
		ingest.WithMaxAttempts(c.Ingest.MaxAttempts),
		ingest.WithNotifier(svc.Events))

	keys, _ := def.(widget.KeySetter)
	svc.Widget = widget.New(widget.Deps{
		Set:      svc.Set,
		Queue:    svc.Queue,
		Resolver: res,
		Searcher: def,
		Fetcher:  svc.Fetcher,
		Icons:    svc.Icons,
		Secure:   storage.NewSecure(store),
		Keys:     keys,
		Throttle: svc.Throttle,
	}, widget.WithRefreshInterval(c.RefreshInterval))

	return svc, nil
}

func (s *ServiceContext) openStore(ctx context.Context) (storage.Store, error) {
	sc := s.Config.Storage
	switch sc.Driver {
	case config.DriverFile:
		st, err := kvfile.Open(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("open file storage: %w", err)
		}
		return st, nil
	case config.DriverRedis:
		rds, err := redis.NewRedis(sc.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		return kvredis.New(rds, sc.Instance), nil
	case config.DriverPostgres, config.DriverSQLite:
		st, err := kvsql.Open(ctx, kvsql.Dialect(sc.Driver), sc.DSN, sc.Instance)
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", sc.Driver, err)
		}
		s.closers = append(s.closers, st.Close)
		return st, nil
	default:
		return storage.NewMemory(), nil
	}
}

// Unlock releases the gate Widget.Run waits on. Later calls are no-ops.
func (s *ServiceContext) Unlock() bool {
	first := false
	s.unlockOnce.Do(func() {
		close(s.unlocked)
		first = true
	})
	return first
}

// Unlocked is closed once Unlock has been called.
func (s *ServiceContext) Unlocked() <-chan struct{} {
	return s.unlocked
}

// Close stops ingestion and releases storage handles.
func (s *ServiceContext) Close() {
	if s.Queue != nil {
		s.Queue.Stop()
	}
	for _, fn := range s.closers {
		fn()
	}
	s.closers = nil
}
