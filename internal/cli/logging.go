package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	return []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		storageLine(cfg.Storage),
		fmt.Sprintf("Throttle (base/max/quiet): %s / %s / %s", cfg.Throttle.Base, cfg.Throttle.Max, cfg.Throttle.QuietWindow),
		fmt.Sprintf("Ingest max attempts: %d", cfg.Ingest.MaxAttempts),
		fmt.Sprintf("Refresh interval: %s", refreshLine(cfg)),
		"Market config: " + cfg.Market.Describe(),
	}
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func storageLine(s config.StorageConf) string {
	switch s.Driver {
	case config.DriverFile:
		return fmt.Sprintf("Storage: file %s", s.Path)
	case config.DriverRedis:
		return fmt.Sprintf("Storage: redis %s instance=%s", s.Redis.Host, s.Instance)
	case config.DriverPostgres, config.DriverSQLite:
		return fmt.Sprintf("Storage: %s %s instance=%s", s.Driver, presence(strings.TrimSpace(s.DSN) != ""), s.Instance)
	default:
		return "Storage: memory"
	}
}

func refreshLine(cfg *config.Config) string {
	if cfg.RefreshInterval <= 0 {
		return "disabled"
	}
	return cfg.RefreshInterval.String()
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
