package lunarcrush

import (
	"context"
	"fmt"
	"net/http"

	"coinlake/pkg/provider"
)

func init() {
	provider.Register("lunarcrush", func(name string, cfg *provider.ProviderConfig) (provider.Provider, error) {
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
		return &seriesProvider{client: NewClient(opts...)}, nil
	})
}

// seriesProvider adapts Client to the provider registry interface. The
// variant identifier is the asset ticker, e.g. "BTC".
type seriesProvider struct {
	client *Client
}

func (p *seriesProvider) FetchSeries(ctx context.Context, req provider.Request) ([]provider.Point, error) {
	if req.Kind != "social" {
		return nil, provider.Permanent(fmt.Errorf("lunarcrush: unsupported data kind %q", req.Kind))
	}
	return p.client.TimeSeries(ctx, req.VariantID)
}
