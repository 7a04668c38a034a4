package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinboard/pkg/market"
)

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func newMockServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	return server, client
}

func TestClientSearch(t *testing.T) {
	server, client := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "btc", r.URL.Query().Get("query"))
		writeJSON(w, map[string]any{
			"coins": []map[string]any{
				{"id": "bitcoin", "symbol": "BTC", "name": "Bitcoin", "market_cap_rank": 1, "thumb": "https://img/btc.png"},
				{"id": "", "symbol": "BAD", "name": "no id"},
				{"id": "wrapped-bitcoin", "symbol": "WBTC", "name": "Wrapped Bitcoin", "market_cap_rank": nil},
			},
			"exchanges": []any{},
		})
	})
	defer server.Close()

	coins, err := client.Search(context.Background(), "btc")
	require.NoError(t, err)
	require.Len(t, coins, 2)
	require.Equal(t, "bitcoin", coins[0].ID)
	require.NotNil(t, coins[0].MarketCapRank)
	require.Equal(t, 1, *coins[0].MarketCapRank)
	require.Nil(t, coins[1].MarketCapRank)
}

func TestClientSearchEmptyResults(t *testing.T) {
	server, client := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"coins": []any{}})
	})
	defer server.Close()

	coins, err := client.Search(context.Background(), "zzzz")
	require.NoError(t, err)
	require.Empty(t, coins)
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		rateLimited bool
		malformed   bool
		status      int
	}{
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":{"error_code":429}}`))
			},
			rateLimited: true,
			status:      http.StatusTooManyRequests,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
		},
		{
			name: "missing coins",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, map[string]any{"categories": []any{}})
			},
			malformed: true,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := newMockServer(t, tt.handler)
			defer server.Close()

			coins, err := client.Search(context.Background(), "btc")
			require.Error(t, err)
			assert.Nil(t, coins)
			assert.Equal(t, tt.rateLimited, market.IsRateLimited(err))
			assert.Equal(t, tt.malformed, errors.Is(err, market.ErrMalformedResponse))
			if tt.status != 0 {
				var se *market.StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, tt.status, se.StatusCode)
			}
		})
	}
}

func TestClientMarkets(t *testing.T) {
	server, client := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/markets", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "usd", q.Get("vs_currency"))
		require.Equal(t, "bitcoin,ethereum", q.Get("ids"))
		require.Equal(t, "1h,24h,7d,14d,30d,200d,1y", q.Get("price_change_percentage"))
		writeJSON(w, []map[string]any{
			{
				"id": "ethereum", "symbol": "eth", "name": "Ethereum", "image": "https://img/eth.png",
				"current_price": 3000.5, "price_change_percentage_1h_in_currency": -0.5,
				"price_change_percentage_24h": 1.25, "price_change_percentage_7d_in_currency": nil,
			},
			{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin", "current_price": nil},
		})
	})
	defer server.Close()

	coins, err := client.Markets(context.Background(), market.MarketsRequest{IDs: []string{"bitcoin", "ethereum"}})
	require.NoError(t, err)
	require.Len(t, coins, 2)
	eth := coins[0]
	require.Equal(t, "ETH", eth.Symbol)
	require.InDelta(t, 3000.5, *eth.CurrentPrice, 1e-9)
	require.InDelta(t, -0.5, *eth.Change1h, 1e-9)
	require.InDelta(t, 1.25, *eth.Change24h, 1e-9)
	require.Nil(t, eth.Change7d)
	require.Nil(t, coins[1].CurrentPrice)
}

func TestClientMarketsChunksPastPageLimit(t *testing.T) {
	var calls int32
	server, client := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		ids := strings.Split(q.Get("ids"), ",")
		perPage, err := strconv.Atoi(q.Get("per_page"))
		require.NoError(t, err)
		require.LessOrEqual(t, perPage, maxPerPage)
		// Upstream silently truncates to per_page.
		ids = ids[:min(len(ids), perPage)]
		rows := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, map[string]any{"id": id, "symbol": id, "name": id})
		}
		writeJSON(w, rows)
	})
	defer server.Close()

	ids := make([]string, 260)
	for i := range ids {
		ids[i] = fmt.Sprintf("coin-%d", i)
	}
	coins, err := client.Markets(context.Background(), market.MarketsRequest{IDs: ids})
	require.NoError(t, err)
	require.Len(t, coins, 260)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Equal(t, "coin-259", coins[259].ID)
}

func TestClientMarketsFailsWhenAnyChunkFails(t *testing.T) {
	var calls int32
	server, client := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, []map[string]any{})
	})
	defer server.Close()

	ids := make([]string, maxPerPage+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("coin-%d", i)
	}
	_, err := client.Markets(context.Background(), market.MarketsRequest{IDs: ids})
	require.ErrorIs(t, err, market.ErrRateLimited)
}

func TestClientMarketsNoIDsSkipsRequest(t *testing.T) {
	var calls int32
	server, client := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	defer server.Close()

	coins, err := client.Markets(context.Background(), market.MarketsRequest{})
	require.NoError(t, err)
	require.Empty(t, coins)
	require.Zero(t, atomic.LoadInt32(&calls))
}

func TestClientMarketsRejectsShapeMismatch(t *testing.T) {
	server, client := newMockServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{{"symbol": "btc"}})
	})
	defer server.Close()

	_, err := client.Markets(context.Background(), market.MarketsRequest{IDs: []string{"bitcoin"}})
	require.ErrorIs(t, err, market.ErrMalformedResponse)
}

func TestClientAPIKeyHeader(t *testing.T) {
	var demo, pro atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		demo.Store(r.Header.Get("x-cg-demo-api-key"))
		pro.Store(r.Header.Get("x-cg-pro-api-key"))
		writeJSON(w, map[string]any{"coins": []any{}})
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithAPIKey(" demo "))
	_, err := client.Search(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "demo", demo.Load())
	require.Equal(t, "", pro.Load())

	proClient := NewClient(WithBaseURL(server.URL), WithPro(true))
	proClient.SetAPIKey("paid")
	_, err = proClient.Search(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "paid", pro.Load())
}

func TestNewClientDefaults(t *testing.T) {
	require.Equal(t, FreeBaseURL, NewClient().baseURL)
	require.Equal(t, ProBaseURL, NewClient(WithPro(true)).baseURL)
	require.Equal(t, "http://x", NewClient(WithBaseURL("http://x/")).baseURL)
}

func TestProviderAppliesDefaultsAndTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/coins/markets") {
			require.Equal(t, "eur", r.URL.Query().Get("vs_currency"))
			require.Equal(t, "24h", r.URL.Query().Get("price_change_percentage"))
			writeJSON(w, []map[string]any{{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin"}})
			return
		}
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, map[string]any{"coins": []any{}})
	}))
	defer server.Close()

	provider := NewProvider(
		WithTimeout(50*time.Millisecond),
		WithVsCurrency("eur"),
		WithPriceChangeWindows([]string{"24h"}),
		WithClientOptions(WithBaseURL(server.URL)),
	)
	coins, err := provider.Markets(context.Background(), market.MarketsRequest{IDs: []string{"bitcoin"}})
	require.NoError(t, err)
	require.Len(t, coins, 1)

	_, err = provider.Search(context.Background(), "slow")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, "coingecko", provider.Name())
}
