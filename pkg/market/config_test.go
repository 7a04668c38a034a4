package market_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	market "coinboard/pkg/market"
	_ "coinboard/pkg/market/coingecko"
)

func TestLoadMarketConfig(t *testing.T) {
	dir := t.TempDir()
	configYAML := `
default: coingecko
providers:
  coingecko:
    type: coingecko
    base_url: https://api.coingecko.com/api/v3
    timeout: 6s
    http_timeout: 12s
`
	path := filepath.Join(dir, "market.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := market.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Default != "coingecko" {
		t.Fatalf("unexpected default: %s", cfg.Default)
	}
	p := cfg.Providers["coingecko"]
	if p.VsCurrency != "usd" {
		t.Fatalf("vs_currency default not applied, got %q", p.VsCurrency)
	}
	if strings.Join(p.PriceChangeWindows, ",") != "1h,24h,7d,14d,30d,200d,1y" {
		t.Fatalf("windows default not applied, got %v", p.PriceChangeWindows)
	}

	providers, err := cfg.BuildProviders()
	if err != nil {
		t.Fatalf("BuildProviders error: %v", err)
	}
	if len(providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(providers))
	}
	if _, ok := providers["coingecko"]; !ok {
		t.Fatalf("provider map missing coingecko")
	}
}

func TestMarketConfigInvalidType(t *testing.T) {
	_, err := market.LoadConfigFromReader(strings.NewReader(`
providers:
  demo:
    type: foobar
`))
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported type error, got %v", err)
	}
}

func TestMarketConfigUnknownDefault(t *testing.T) {
	_, err := market.LoadConfigFromReader(strings.NewReader(`
default: missing
providers:
  cg:
    type: coingecko
`))
	if err == nil || !strings.Contains(err.Error(), "not defined") {
		t.Fatalf("expected undefined default error, got %v", err)
	}
}

// Ensures env placeholders are expanded and durations parsed.
func TestMarketConfig_EnvExpansionAndDurations(t *testing.T) {
	t.Setenv("CG_BASE_URL", "https://api.coingecko.test/api/v3")
	t.Setenv("CG_KEY", "demo-key")
	t.Setenv("TOUT", "9s")
	t.Setenv("HTTP_TOUT", "13s")

	cfg, err := market.LoadConfigFromReader(strings.NewReader(`
default: cg
providers:
  cg:
    type: coingecko
    base_url: ${CG_BASE_URL}
    api_key: ${CG_KEY}
    timeout: ${TOUT}
    http_timeout: ${HTTP_TOUT}
    vs_currency: EUR
    price_change_windows: ["1h", " 24h ", ""]
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	name, p, ok := cfg.DefaultProvider()
	if !ok || name != "cg" {
		t.Fatalf("default provider lookup failed: %q %v", name, ok)
	}
	if p.BaseURL != "https://api.coingecko.test/api/v3" || p.APIKey != "demo-key" {
		t.Fatalf("env not expanded: base=%q key=%q", p.BaseURL, p.APIKey)
	}
	if p.Timeout.String() != "9s" || p.HTTPTimeout.String() != "13s" {
		t.Fatalf("durations not parsed, timeout=%s http_timeout=%s", p.Timeout, p.HTTPTimeout)
	}
	if p.VsCurrency != "eur" {
		t.Fatalf("vs_currency not normalised, got %q", p.VsCurrency)
	}
	if strings.Join(p.PriceChangeWindows, ",") != "1h,24h" {
		t.Fatalf("windows not trimmed, got %v", p.PriceChangeWindows)
	}
}

func TestMarketConfigInvalidDuration(t *testing.T) {
	_, err := market.LoadConfigFromReader(strings.NewReader(`
providers:
  cg:
    type: coingecko
    timeout: -1s
`))
	if err == nil || !strings.Contains(err.Error(), "must be positive") {
		t.Fatalf("expected positive duration error, got %v", err)
	}
}
