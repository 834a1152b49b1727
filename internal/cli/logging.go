package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"coinlake/internal/config"
	"coinlake/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Workers: %d", cfg.Workers),
		fmt.Sprintf("Cache: local=%s bucket=%s ttl=%ds", cfg.Cache.LocalPath, cfg.Cache.Bucket, cfg.Cache.FreshTTLSeconds),
		fmt.Sprintf("Rate limit: %d/s burst %d", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		fmt.Sprintf("Retry: attempts=%d", cfg.Retry.MaxAttempts),
		fmt.Sprintf("Quality: loss=%.2f%% precision=%d", cfg.Quality.LossThreshold*100, cfg.Quality.PricePrecision),
		fmt.Sprintf("Output: %s", cfg.Output.Dir),
		fmt.Sprintf("Jobs: %d", len(cfg.Jobs)),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		sectionLine("Provider config", cfg.Provider),
		sectionLine("Identity config", cfg.Identity),
	}

	return lines
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

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
