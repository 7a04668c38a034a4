package coingecko

import (
	"fmt"
	"strings"

	"coinboard/pkg/market"
)

// searchResponse mirrors GET /search. Only the coins section is used.
//
//	{"coins": [{"id": "bitcoin", "symbol": "BTC", "name": "Bitcoin", "market_cap_rank": 1, "thumb": "..."}]}
type searchResponse struct {
	Coins *[]searchCoin `json:"coins"`
}

type searchCoin struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank *int   `json:"market_cap_rank"`
	Thumb         string `json:"thumb"`
}

func (r searchResponse) toCoins() ([]market.SearchCoin, error) {
	if r.Coins == nil {
		return nil, fmt.Errorf("coingecko: search response missing coins: %w", market.ErrMalformedResponse)
	}
	out := make([]market.SearchCoin, 0, len(*r.Coins))
	for _, c := range *r.Coins {
		// entries without an id cannot be selected; skip rather than fail the lookup
		if strings.TrimSpace(c.ID) == "" {
			continue
		}
		out = append(out, market.SearchCoin{
			ID:            c.ID,
			Symbol:        c.Symbol,
			Name:          c.Name,
			MarketCapRank: c.MarketCapRank,
			Thumb:         c.Thumb,
		})
	}
	return out, nil
}

// marketCoin mirrors one element of GET /coins/markets.
type marketCoin struct {
	ID                 string   `json:"id"`
	Symbol             string   `json:"symbol"`
	Name               string   `json:"name"`
	Image              string   `json:"image"`
	CurrentPrice       *float64 `json:"current_price"`
	MarketCap          *float64 `json:"market_cap"`
	MarketCapRank      *int     `json:"market_cap_rank"`
	TotalVolume        *float64 `json:"total_volume"`
	PriceChange1h      *float64 `json:"price_change_percentage_1h_in_currency"`
	PriceChange24h     *float64 `json:"price_change_percentage_24h_in_currency"`
	PriceChange7d      *float64 `json:"price_change_percentage_7d_in_currency"`
	PriceChange14d     *float64 `json:"price_change_percentage_14d_in_currency"`
	PriceChange30d     *float64 `json:"price_change_percentage_30d_in_currency"`
	PriceChange200d    *float64 `json:"price_change_percentage_200d_in_currency"`
	PriceChange1y      *float64 `json:"price_change_percentage_1y_in_currency"`
	PriceChange24hBare *float64 `json:"price_change_percentage_24h"`
}

func toCoins(rows []marketCoin) ([]market.Coin, error) {
	out := make([]market.Coin, 0, len(rows))
	for i, row := range rows {
		if strings.TrimSpace(row.ID) == "" {
			return nil, fmt.Errorf("coingecko: markets row %d missing id: %w", i, market.ErrMalformedResponse)
		}
		change24h := row.PriceChange24h
		if change24h == nil {
			change24h = row.PriceChange24hBare
		}
		out = append(out, market.Coin{
			ID:            row.ID,
			Symbol:        strings.ToUpper(row.Symbol),
			Name:          row.Name,
			Image:         row.Image,
			CurrentPrice:  row.CurrentPrice,
			MarketCap:     row.MarketCap,
			MarketCapRank: row.MarketCapRank,
			TotalVolume:   row.TotalVolume,
			Change1h:      row.PriceChange1h,
			Change24h:     change24h,
			Change7d:      row.PriceChange7d,
			Change14d:     row.PriceChange14d,
			Change30d:     row.PriceChange30d,
			Change200d:    row.PriceChange200d,
			Change1y:      row.PriceChange1y,
		})
	}
	return out, nil
}
