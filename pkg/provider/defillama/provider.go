package defillama

import (
	"context"
	"fmt"
	"net/http"

	"coinlake/pkg/provider"
)

func init() {
	provider.Register("defillama", func(name string, cfg *provider.ProviderConfig) (provider.Provider, error) {
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return &seriesProvider{client: NewClient(opts...)}, nil
	})
}

// seriesProvider adapts Client to the provider registry interface. The
// variant identifier is the DeFiLlama protocol slug.
type seriesProvider struct {
	client *Client
}

func (p *seriesProvider) FetchSeries(ctx context.Context, req provider.Request) ([]provider.Point, error) {
	switch req.Kind {
	case "onchain":
		return p.client.ProtocolTVL(ctx, req.VariantID)
	case "dex_volume":
		return p.client.DexVolume(ctx, req.VariantID)
	default:
		return nil, provider.Permanent(fmt.Errorf("defillama: unsupported data kind %q", req.Kind))
	}
}
