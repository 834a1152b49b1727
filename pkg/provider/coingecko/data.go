package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"coinlake/pkg/provider"
)

// marketChartResponse mirrors /coins/{id}/market_chart: parallel arrays of
// [timestamp_ms, value] pairs.
type marketChartResponse struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// MarketChart fetches the daily close/volume/market-cap series for one
// coin. days accepts a number of days or "max".
func (c *Client) MarketChart(ctx context.Context, coinID, vsCurrency, days string) ([]provider.Point, error) {
	query := url.Values{}
	query.Set("vs_currency", vsCurrency)
	query.Set("days", days)
	query.Set("interval", "daily")

	var chart marketChartResponse
	if err := c.get(ctx, "/coins/"+url.PathEscape(coinID)+"/market_chart", query, &chart); err != nil {
		return nil, err
	}
	if len(chart.Prices) == 0 {
		return nil, nil
	}

	byDay := make(map[int64]map[string]float64, len(chart.Prices))
	merge := func(pairs [][2]float64, metric string) {
		for _, pair := range pairs {
			day := dayUnix(pair[0])
			metrics, ok := byDay[day]
			if !ok {
				metrics = make(map[string]float64, 3)
				byDay[day] = metrics
			}
			metrics[metric] = pair[1]
		}
	}
	merge(chart.Prices, "close")
	merge(chart.TotalVolumes, "volume")
	merge(chart.MarketCaps, "market_cap")

	return pointsFromDayMap(byDay), nil
}

// OHLCRange fetches daily candles between two instants via
// /coins/{id}/ohlc/range. Entries arrive as [ms, open, high, low, close].
func (c *Client) OHLCRange(ctx context.Context, coinID, vsCurrency string, from, to time.Time) ([]provider.Point, error) {
	query := url.Values{}
	query.Set("vs_currency", vsCurrency)
	query.Set("from", strconv.FormatInt(from.UTC().Unix(), 10))
	query.Set("to", strconv.FormatInt(to.UTC().Unix(), 10))
	query.Set("interval", "daily")

	var candles [][5]float64
	if err := c.get(ctx, "/coins/"+url.PathEscape(coinID)+"/ohlc/range", query, &candles); err != nil {
		return nil, err
	}

	points := make([]provider.Point, 0, len(candles))
	for _, candle := range candles {
		points = append(points, provider.Point{
			Timestamp: time.Unix(dayUnix(candle[0]), 0).UTC(),
			Metrics: map[string]float64{
				"open":  candle[1],
				"high":  candle[2],
				"low":   candle[3],
				"close": candle[4],
			},
		})
	}
	return points, nil
}

// parsePeriod converts a period string into an OHLC range. Accepts "max"
// (capped at the earliest supported candle history) or "<n>d".
func parsePeriod(period string, now time.Time) (time.Time, time.Time, error) {
	to := now.UTC()
	if period == "" || period == "max" {
		return time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), to, nil
	}
	n, err := strconv.Atoi(trimSuffix(period, "d"))
	if err != nil || n <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("coingecko: invalid period %q", period)
	}
	return to.AddDate(0, 0, -n), to, nil
}

func trimSuffix(s, suffix string) string {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}

func dayUnix(ms float64) int64 {
	ts := time.UnixMilli(int64(ms)).UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

func pointsFromDayMap(byDay map[int64]map[string]float64) []provider.Point {
	points := make([]provider.Point, 0, len(byDay))
	for day, metrics := range byDay {
		points = append(points, provider.Point{
			Timestamp: time.Unix(day, 0).UTC(),
			Metrics:   metrics,
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points
}
