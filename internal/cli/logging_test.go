package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coinboard/internal/config"
)

func TestConfigSummaryLines(t *testing.T) {
	assert.Equal(t, []string{"Configuration: <nil>"}, ConfigSummaryLines(nil))

	cfg := &config.Config{
		Env:      "dev",
		Storage:  config.StorageConf{Driver: config.DriverPostgres, DSN: "postgres://secret@db/coinboard", Instance: "main"},
		Throttle: config.ThrottleConf{Base: 300 * time.Millisecond, Max: 10 * time.Second, QuietWindow: 5 * time.Second},
		Ingest:   config.IngestConf{MaxAttempts: 5},
	}
	cfg.Market.File = "/etc/coinboard/market.yaml"

	lines := ConfigSummaryLines(cfg)
	assert.Equal(t, []string{
		"Environment: dev",
		"Storage: postgres configured instance=main",
		"Throttle (base/max/quiet): 300ms / 10s / 5s",
		"Ingest max attempts: 5",
		"Refresh interval: disabled",
		"Market config: /etc/coinboard/market.yaml",
	}, lines)
	for _, line := range lines {
		assert.NotContains(t, line, "secret")
	}

	cfg.Storage = config.StorageConf{Driver: config.DriverFile, Path: "/var/lib/board.msgpack"}
	cfg.RefreshInterval = time.Minute
	lines = ConfigSummaryLines(cfg)
	assert.Equal(t, "Storage: file /var/lib/board.msgpack", lines[1])
	assert.Equal(t, "Refresh interval: 1m0s", lines[4])
}
