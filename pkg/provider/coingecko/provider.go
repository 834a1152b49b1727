package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"coinlake/pkg/provider"
)

func init() {
	provider.Register("coingecko", func(name string, cfg *provider.ProviderConfig) (provider.Provider, error) {
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if key := cfg.APIKey(); key != "" {
			opts = append(opts, WithAPIKey(key))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return &seriesProvider{client: NewClient(opts...), now: time.Now}, nil
	})
}

// seriesProvider adapts Client to the provider registry interface.
type seriesProvider struct {
	client *Client
	now    func() time.Time
}

func (p *seriesProvider) FetchSeries(ctx context.Context, req provider.Request) ([]provider.Point, error) {
	switch req.Kind {
	case "market_chart":
		days := req.Period
		if days == "" {
			days = "max"
		}
		return p.client.MarketChart(ctx, req.VariantID, "usd", days)
	case "ohlc":
		from, to, err := parsePeriod(req.Period, p.now())
		if err != nil {
			return nil, provider.Permanent(err)
		}
		return p.client.OHLCRange(ctx, req.VariantID, "usd", from, to)
	default:
		return nil, provider.Permanent(fmt.Errorf("coingecko: unsupported data kind %q", req.Kind))
	}
}
