package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/metric"

	"coinboard/pkg/market"
)

const (
	FreeBaseURL = "https://api.coingecko.com/api/v3"
	ProBaseURL  = "https://pro-api.coingecko.com/api/v3"

	demoKeyHeader = "x-cg-demo-api-key"
	proKeyHeader  = "x-cg-pro-api-key"

	defaultHTTPTimeout = 10 * time.Second
	// maxPerPage is the largest per_page /coins/markets honours.
	maxPerPage   = 250
	maxErrorBody = 512
	providerName = "coingecko"
)

var requestsTotal = metric.NewCounterVec(&metric.CounterVecOpts{
	Namespace: "coinboard",
	Subsystem: "coingecko",
	Name:      "requests_total",
	Help:      "coingecko requests by endpoint and status code",
	Labels:    []string{"endpoint", "code"},
})

// Client wraps access to the CoinGecko REST API. It never retries on its
// own; callers decide what a failure means.
type Client struct {
	baseURL    string
	pro        bool
	httpClient *http.Client

	keyMu  sync.RWMutex
	apiKey string
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithAPIKey sets the key sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithPro selects the paid API host and key header.
func WithPro(pro bool) Option {
	return func(c *Client) {
		c.pro = pro
	}
}

// NewClient constructs a CoinGecko API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		client.baseURL = FreeBaseURL
		if client.pro {
			client.baseURL = ProBaseURL
		}
	}
	return client
}

// SetAPIKey swaps the key at runtime, e.g. after the user saves a new one.
func (c *Client) SetAPIKey(key string) {
	c.keyMu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.keyMu.Unlock()
}

func (c *Client) key() string {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.apiKey
}

// Search queries GET /search?query=<term>.
func (c *Client) Search(ctx context.Context, query string) ([]market.SearchCoin, error) {
	params := url.Values{}
	params.Set("query", query)
	var payload searchResponse
	if err := c.get(ctx, "search", "/search", params, &payload); err != nil {
		return nil, err
	}
	return payload.toCoins()
}

// Markets queries GET /coins/markets for the requested ids, in chunks of
// maxPerPage ids per request. Any failed chunk fails the whole call.
func (c *Client) Markets(ctx context.Context, req market.MarketsRequest) ([]market.Coin, error) {
	if len(req.IDs) == 0 {
		return []market.Coin{}, nil
	}
	vs := req.VsCurrency
	if vs == "" {
		vs = "usd"
	}
	windows := req.PriceChangeWindows
	if len(windows) == 0 {
		windows = market.DefaultPriceChangeWindows
	}

	out := make([]market.Coin, 0, len(req.IDs))
	for chunk := range slices.Chunk(req.IDs, maxPerPage) {
		params := url.Values{}
		params.Set("vs_currency", vs)
		params.Set("ids", strings.Join(chunk, ","))
		params.Set("price_change_percentage", strings.Join(windows, ","))
		params.Set("per_page", strconv.Itoa(len(chunk)))
		params.Set("page", "1")

		var payload []marketCoin
		if err := c.get(ctx, "markets", "/coins/markets", params, &payload); err != nil {
			return nil, err
		}
		coins, err := toCoins(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, coins...)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("coingecko: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if key := c.key(); key != "" {
		header := demoKeyHeader
		if c.pro {
			header = proKeyHeader
		}
		req.Header.Set(header, key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.Inc(endpoint, "error")
		return fmt.Errorf("coingecko: %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	requestsTotal.Inc(endpoint, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logx.WithContext(ctx).Debugf("coingecko: %s status=%d body=%s", endpoint, resp.StatusCode, string(body))
		return &market.StatusError{
			Provider:   providerName,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coingecko: decode %s response: %v: %w", endpoint, err, market.ErrMalformedResponse)
	}
	return nil
}
