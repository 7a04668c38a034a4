package config

import (
	"coinboard/pkg/confkit"
	"coinboard/pkg/market"
)

// MarketConfig returns the hydrated market section, or etc/market.yaml from
// the project root when the main config does not name one.
func (c *Config) MarketConfig() (*market.Config, error) {
	return c.Market.OrElse(func() (*market.Config, error) {
		return market.LoadConfig(confkit.MustProjectPath("etc/market.yaml"))
	})
}
