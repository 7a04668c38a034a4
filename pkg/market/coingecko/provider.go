package coingecko

import (
	"context"
	"net/http"
	"time"

	"coinboard/pkg/market"
)

const defaultProviderTimeout = 8 * time.Second

// Provider wraps Client calls behind the generic market.Provider contract.
type Provider struct {
	client     *Client
	timeout    time.Duration
	vsCurrency string
	windows    []string
	providerID string
}

type providerConfig struct {
	timeout      time.Duration
	vsCurrency   string
	windows      []string
	clientConfig []Option
}

// ProviderOption customises the CoinGecko provider.
type ProviderOption func(*providerConfig)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(cfg *providerConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithVsCurrency sets the quote currency used when a request leaves it empty.
func WithVsCurrency(vs string) ProviderOption {
	return func(cfg *providerConfig) {
		if vs != "" {
			cfg.vsCurrency = vs
		}
	}
}

// WithPriceChangeWindows sets the windows used when a request leaves them empty.
func WithPriceChangeWindows(windows []string) ProviderOption {
	return func(cfg *providerConfig) {
		if len(windows) > 0 {
			cfg.windows = append([]string(nil), windows...)
		}
	}
}

// WithClientOptions passes options to the underlying client.
func WithClientOptions(options ...Option) ProviderOption {
	return func(cfg *providerConfig) {
		cfg.clientConfig = append(cfg.clientConfig, options...)
	}
}

// NewProvider constructs a CoinGecko provider.
func NewProvider(opts ...ProviderOption) *Provider {
	cfg := &providerConfig{
		timeout:    defaultProviderTimeout,
		vsCurrency: "usd",
		windows:    market.DefaultPriceChangeWindows,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Provider{
		client:     NewClient(cfg.clientConfig...),
		timeout:    cfg.timeout,
		vsCurrency: cfg.vsCurrency,
		windows:    cfg.windows,
	}
}

func init() {
	market.RegisterProvider(providerName, func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		opts := []ProviderOption{
			WithVsCurrency(cfg.VsCurrency),
			WithPriceChangeWindows(cfg.PriceChangeWindows),
		}
		clientOptions := []Option{WithPro(cfg.Pro), WithAPIKey(cfg.APIKey)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.HTTPTimeout > 0 {
			clientOptions = append(clientOptions, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		if cfg.BaseURL != "" {
			clientOptions = append(clientOptions, WithBaseURL(cfg.BaseURL))
		}
		opts = append(opts, WithClientOptions(clientOptions...))
		provider := NewProvider(opts...)
		provider.providerID = name
		return provider, nil
	})
}

// Search implements market.Provider.
func (p *Provider) Search(ctx context.Context, query string) ([]market.SearchCoin, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return p.client.Search(ctx, query)
}

// Markets implements market.Provider.
func (p *Provider) Markets(ctx context.Context, req market.MarketsRequest) ([]market.Coin, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if req.VsCurrency == "" {
		req.VsCurrency = p.vsCurrency
	}
	if len(req.PriceChangeWindows) == 0 {
		req.PriceChangeWindows = p.windows
	}
	return p.client.Markets(ctx, req)
}

// SetAPIKey forwards a new key to the client.
func (p *Provider) SetAPIKey(key string) {
	p.client.SetAPIKey(key)
}

// Name returns the configured provider id.
func (p *Provider) Name() string {
	if p.providerID != "" {
		return p.providerID
	}
	return providerName
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, p.timeout)
}
