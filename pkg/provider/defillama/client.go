// Package defillama implements the DeFiLlama on-chain provider: protocol
// TVL history and DEX volume summaries. The public API is unauthenticated.
package defillama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coinlake/pkg/provider"
)

const (
	defaultBaseURL     = "https://api.llama.fi"
	defaultHTTPTimeout = 15 * time.Second
)

// Client wraps the DeFiLlama REST API. One HTTP request per call; retry
// policy belongs to the fetch coordinator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// NewClient constructs a DeFiLlama API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return provider.Permanent(fmt.Errorf("defillama: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return provider.Transient(fmt.Errorf("defillama: %s: %w", path, err))
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return provider.Transient(fmt.Errorf("defillama: read response: %w", readErr))
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return provider.Transient(fmt.Errorf("defillama: %s: http status %d", path, resp.StatusCode))
	default:
		return provider.Permanent(fmt.Errorf("defillama: %s: http status %d", path, resp.StatusCode))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return provider.Permanent(fmt.Errorf("defillama: decode %s: %w", path, err))
	}
	return nil
}

type protocolResponse struct {
	TVL []struct {
		Date              int64   `json:"date"`
		TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
	} `json:"tvl"`
}

// ProtocolTVL fetches the daily total-value-locked history for a protocol
// slug, normalized to midnight-UTC points carrying protocol_tvl.
func (c *Client) ProtocolTVL(ctx context.Context, slug string) ([]provider.Point, error) {
	var protocol protocolResponse
	if err := c.get(ctx, "/protocol/"+url.PathEscape(slug), &protocol); err != nil {
		return nil, err
	}

	points := make([]provider.Point, 0, len(protocol.TVL))
	for _, sample := range protocol.TVL {
		points = append(points, provider.Point{
			Timestamp: dayOf(sample.Date),
			Metrics:   map[string]float64{"protocol_tvl": sample.TotalLiquidityUSD},
		})
	}
	return points, nil
}

type dexSummaryResponse struct {
	TotalDataChart [][2]float64 `json:"totalDataChart"`
}

// DexVolume fetches the daily DEX trade volume series for a protocol slug.
func (c *Client) DexVolume(ctx context.Context, slug string) ([]provider.Point, error) {
	var summary dexSummaryResponse
	if err := c.get(ctx, "/summary/dexs/"+url.PathEscape(slug), &summary); err != nil {
		return nil, err
	}

	points := make([]provider.Point, 0, len(summary.TotalDataChart))
	for _, pair := range summary.TotalDataChart {
		points = append(points, provider.Point{
			Timestamp: dayOf(int64(pair[0])),
			Metrics:   map[string]float64{"dex_volume": pair[1]},
		})
	}
	return points, nil
}

func dayOf(unix int64) time.Time {
	ts := time.Unix(unix, 0).UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
