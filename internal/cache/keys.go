package cache

import (
	"strings"
	"time"
)

// DefaultBucket is the key namespace used when config does not name one.
const DefaultBucket = "coinlake"

// DataKind names the logical payload stored under a cache key.
type DataKind string

const (
	KindMarketChart DataKind = "market_chart"
	KindOHLC        DataKind = "ohlc"
	KindOnChain     DataKind = "onchain"
	KindSocial      DataKind = "social"
	KindMetadata    DataKind = "metadata"
	KindDerivatives DataKind = "derivatives"
)

func formatKey(bucket string, parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	if clean := strings.TrimSpace(bucket); clean != "" {
		values = append(values, clean)
	} else {
		values = append(values, DefaultBucket)
	}
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// SeriesKey composes the deterministic key for one fetchable payload.
// The same (provider, variant, kind, period) always maps to the same key,
// which is what makes refetches overwrite instead of duplicate.
func SeriesKey(bucket, provider, variantID string, kind DataKind, period string) string {
	return formatKey(bucket, "series", provider, variantID, string(kind), period)
}

// DailySnapshotKey addresses the one global snapshot captured per UTC day.
func DailySnapshotKey(bucket string, kind DataKind, day time.Time) string {
	return formatKey(bucket, "snapshot", string(kind), day.UTC().Format("2006-01-02"))
}

// Validity decides whether a cache entry may be served without a refetch.
// Two rules exist: calendar validity (daily snapshots stay fresh through
// the UTC day they were fetched) and TTL validity (live data stays fresh
// for a fixed duration).
type Validity struct {
	calendar bool
	ttl      time.Duration
}

// CalendarDay returns a validity rule that accepts entries fetched on the
// current UTC day.
func CalendarDay() Validity {
	return Validity{calendar: true}
}

// TTL returns a validity rule that accepts entries younger than d.
func TTL(d time.Duration) Validity {
	return Validity{ttl: d}
}

// Fresh reports whether an entry fetched at fetchedAt is still valid at now.
func (v Validity) Fresh(fetchedAt, now time.Time) bool {
	if fetchedAt.IsZero() {
		return false
	}
	if v.calendar {
		fy, fm, fd := fetchedAt.UTC().Date()
		ny, nm, nd := now.UTC().Date()
		return fy == ny && fm == nm && fd == nd
	}
	if v.ttl <= 0 {
		return false
	}
	return now.Sub(fetchedAt) < v.ttl
}

// String renders the rule for logs.
func (v Validity) String() string {
	if v.calendar {
		return "calendar-day"
	}
	return "ttl=" + v.ttl.String()
}
