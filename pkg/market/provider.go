package market

import (
	"context"
	"strings"
)

// Provider exposes the two coin-data endpoints the dashboard depends on.
type Provider interface {
	// Search returns coins matching query, most relevant first.
	Search(ctx context.Context, query string) ([]SearchCoin, error)
	// Markets returns display data for the requested ids in a single call.
	Markets(ctx context.Context, req MarketsRequest) ([]Coin, error)
}

// DefaultPriceChangeWindows are the percent-change windows requested for the coin table.
var DefaultPriceChangeWindows = []string{"1h", "24h", "7d", "14d", "30d", "200d", "1y"}

// MarketsRequest scopes a bulk markets query.
type MarketsRequest struct {
	IDs                []string
	VsCurrency         string   // defaults to "usd"
	PriceChangeWindows []string // defaults to DefaultPriceChangeWindows
}

// SearchCoin is one hit from the search endpoint.
type SearchCoin struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank *int   `json:"market_cap_rank,omitempty"`
	Thumb         string `json:"thumb,omitempty"`
}

// Coin is the display record for one row of the coin table. Numeric fields
// are nil when the provider has no value.
type Coin struct {
	ID            string   `json:"id"`
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Image         string   `json:"image,omitempty"`
	CurrentPrice  *float64 `json:"current_price"`
	MarketCap     *float64 `json:"market_cap"`
	MarketCapRank *int     `json:"market_cap_rank"`
	TotalVolume   *float64 `json:"total_volume"`
	Change1h      *float64 `json:"price_change_percentage_1h_in_currency"`
	Change24h     *float64 `json:"price_change_percentage_24h_in_currency"`
	Change7d      *float64 `json:"price_change_percentage_7d_in_currency"`
	Change14d     *float64 `json:"price_change_percentage_14d_in_currency"`
	Change30d     *float64 `json:"price_change_percentage_30d_in_currency"`
	Change200d    *float64 `json:"price_change_percentage_200d_in_currency"`
	Change1y      *float64 `json:"price_change_percentage_1y_in_currency"`
}

// BestMatch picks the search hit for ticker: a case-insensitive exact symbol
// match wins, otherwise the first (most relevant) result. ok is false when
// there are no results.
func BestMatch(coins []SearchCoin, ticker string) (SearchCoin, bool) {
	if len(coins) == 0 {
		return SearchCoin{}, false
	}
	want := strings.TrimSpace(ticker)
	for _, c := range coins {
		if strings.EqualFold(c.Symbol, want) {
			return c, true
		}
	}
	return coins[0], true
}
