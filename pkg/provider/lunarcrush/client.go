// Package lunarcrush implements the LunarCrush social-metrics provider:
// daily galaxy score, alt rank, and sentiment per asset ticker.
package lunarcrush

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
	defaultBaseURL     = "https://lunarcrush.com/api4"
	defaultHTTPTimeout = 15 * time.Second
)

// Client wraps the LunarCrush REST API. One HTTP request per call; retry
// policy belongs to the fetch coordinator.
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

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient constructs a LunarCrush API client.
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

type timeSeriesResponse struct {
	Data []struct {
		Time        int64    `json:"time"`
		GalaxyScore *float64 `json:"galaxy_score"`
		AltRank     *float64 `json:"alt_rank"`
		Sentiment   *float64 `json:"sentiment"`
	} `json:"data"`
}

// TimeSeries fetches the daily social series for one asset ticker.
func (c *Client) TimeSeries(ctx context.Context, ticker string) ([]provider.Point, error) {
	endpoint := c.baseURL + "/public/coins/" + url.PathEscape(ticker) + "/time-series/v2?bucket=day"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("lunarcrush: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, provider.Transient(fmt.Errorf("lunarcrush: %s: %w", ticker, err))
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, provider.Transient(fmt.Errorf("lunarcrush: read response: %w", readErr))
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, provider.Transient(fmt.Errorf("lunarcrush: %s: http status %d", ticker, resp.StatusCode))
	default:
		return nil, provider.Permanent(fmt.Errorf("lunarcrush: %s: http status %d", ticker, resp.StatusCode))
	}

	var series timeSeriesResponse
	if err := json.Unmarshal(body, &series); err != nil {
		return nil, provider.Permanent(fmt.Errorf("lunarcrush: decode %s: %w", ticker, err))
	}

	points := make([]provider.Point, 0, len(series.Data))
	for _, sample := range series.Data {
		metrics := make(map[string]float64, 3)
		if sample.GalaxyScore != nil {
			metrics["social_score"] = *sample.GalaxyScore
		}
		if sample.AltRank != nil {
			metrics["social_rank"] = *sample.AltRank
		}
		if sample.Sentiment != nil {
			metrics["sentiment_score"] = *sample.Sentiment
		}
		if len(metrics) == 0 {
			continue
		}
		ts := time.Unix(sample.Time, 0).UTC()
		points = append(points, provider.Point{
			Timestamp: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Metrics:   metrics,
		})
	}
	return points, nil
}
