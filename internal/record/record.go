package record

import (
	"sort"
	"strings"
	"time"
)

// Standard metric names shared across providers. Providers may emit
// additional metrics; classification below decides how they aggregate.
const (
	MetricOpen        = "open"
	MetricHigh        = "high"
	MetricLow         = "low"
	MetricClose       = "close"
	MetricVolume      = "volume"
	MetricMarketCap   = "market_cap"
	MetricProtocolTVL = "protocol_tvl"
	MetricDexVolume   = "dex_volume"
	MetricSocialScore = "social_score"
	MetricSentiment   = "sentiment_score"
)

// TimeSeries is one observation for one identity at one UTC timestamp.
// Missing metrics are absent from the map, never zero. Records are value
// types and are never mutated after creation; a correction replaces the
// record wholesale under the same (identity, timestamp) key.
type TimeSeries struct {
	VariantID   string
	CanonicalID string
	// Source names where the observation came from, "provider:kind". One
	// variant can carry several rows for the same day (a market chart and
	// a candle fetch both emit a close); Source is the stable key that
	// keeps merging them order-independent.
	Source    string
	Timestamp time.Time
	Metrics   map[string]float64
}

// ID returns the identity the record is currently keyed by: the canonical
// ID once resolved, otherwise the provider-native variant ID.
func (r TimeSeries) ID() string {
	if r.CanonicalID != "" {
		return r.CanonicalID
	}
	return r.VariantID
}

// Metric returns the named metric and whether it is present.
func (r TimeSeries) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// Day truncates the record timestamp to UTC date granularity.
func (r TimeSeries) Day() time.Time {
	return Day(r.Timestamp)
}

// Day normalizes a timestamp to midnight UTC.
func Day(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// MetricClass decides how a metric aggregates across asset variants.
type MetricClass int

const (
	// ClassLevel metrics (prices, caps, scores) take the value from the
	// highest-priority variant that has one.
	ClassLevel MetricClass = iota
	// ClassFlow metrics (traded amounts) sum across variants; an absent
	// value contributes zero.
	ClassFlow
)

// classRule pairs a predicate with the class it assigns. Rules are
// evaluated in order, first match wins; the trailing catch-all keeps every
// unknown metric a level metric.
type classRule struct {
	match func(name string) bool
	class MetricClass
}

var classRules = []classRule{
	{func(name string) bool { return name == MetricVolume }, ClassFlow},
	{func(name string) bool { return name == MetricDexVolume }, ClassFlow},
	{func(name string) bool { return strings.HasSuffix(name, "_volume") }, ClassFlow},
	{func(name string) bool { return true }, ClassLevel},
}

// Classify returns the aggregation class for a metric name.
func Classify(name string) MetricClass {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, rule := range classRules {
		if rule.match(name) {
			return rule.class
		}
	}
	return ClassLevel
}

// SortCanonical orders records by (identity, timestamp) in place. Every
// stage that emits a table sorts it this way so repeated runs over the
// same inputs are byte-identical.
func SortCanonical(records []TimeSeries) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].ID() != records[j].ID() {
			return records[i].ID() < records[j].ID()
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}

// MetricUnion collects every metric name present anywhere in the batch,
// sorted so iteration over the union is deterministic.
func MetricUnion(records []TimeSeries) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for name := range r.Metrics {
			seen[name] = struct{}{}
		}
	}
	union := make([]string, 0, len(seen))
	for name := range seen {
		union = append(union, name)
	}
	sort.Strings(union)
	return union
}
