// Package coingecko implements the CoinGecko market-data provider: daily
// market charts, OHLC candles, and the global derivatives listing used by
// the daily snapshot pipeline.
package coingecko

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
	defaultBaseURL     = "https://pro-api.coingecko.com/api/v3"
	defaultHTTPTimeout = 15 * time.Second
	apiKeyHeader       = "x-cg-pro-api-key"
)

// Client wraps access to the CoinGecko REST API. It performs exactly one
// HTTP request per call and classifies failures as transient or permanent;
// retry policy belongs to the fetch coordinator.
type Client struct {
	baseURL    string
	apiKey     string
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

// WithAPIKey sets the pro API key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient constructs a CoinGecko API client.
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

// get issues one GET and decodes the response into result.
func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return provider.Permanent(fmt.Errorf("coingecko: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return provider.Transient(fmt.Errorf("coingecko: %s: %w", path, err))
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return provider.Transient(fmt.Errorf("coingecko: read response: %w", readErr))
	}
	if err := classifyStatus(resp.StatusCode, path, body); err != nil {
		return err
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return provider.Permanent(fmt.Errorf("coingecko: decode %s: %w", path, err))
		}
	}
	return nil
}

func classifyStatus(status int, path string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return provider.Transient(fmt.Errorf("coingecko: %s: http status %d: %s", path, status, truncate(body)))
	default:
		return provider.Permanent(fmt.Errorf("coingecko: %s: http status %d: %s", path, status, truncate(body)))
	}
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
