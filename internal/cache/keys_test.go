package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSeriesKeyDeterministic(t *testing.T) {
	a := SeriesKey("coinlake", "coingecko", "bitcoin", KindMarketChart, "max")
	b := SeriesKey("coinlake", "coingecko", "bitcoin", KindMarketChart, "max")
	require.Equal(t, a, b)
	require.Equal(t, "coinlake:series:coingecko:bitcoin:market_chart:max", a)
}

func TestSeriesKeyTrimsAndDefaults(t *testing.T) {
	key := SeriesKey("", " coingecko ", "bitcoin", KindOHLC, "")
	require.Equal(t, "coinlake:series:coingecko:bitcoin:ohlc", key)
}

func TestDailySnapshotKey(t *testing.T) {
	day := time.Date(2025, 6, 3, 17, 45, 0, 0, time.UTC)
	key := DailySnapshotKey("coinlake", KindDerivatives, day)
	require.Equal(t, "coinlake:snapshot:derivatives:2025-06-03", key)
}

func TestCalendarDayValidity(t *testing.T) {
	fetched := time.Date(2025, 6, 3, 1, 0, 0, 0, time.UTC)
	v := CalendarDay()

	require.True(t, v.Fresh(fetched, time.Date(2025, 6, 3, 23, 59, 0, 0, time.UTC)))
	require.False(t, v.Fresh(fetched, time.Date(2025, 6, 4, 0, 1, 0, 0, time.UTC)))
	require.False(t, v.Fresh(time.Time{}, time.Now()))
}

func TestCalendarDayValidityUsesUTCDate(t *testing.T) {
	// 23:30 UTC fetched, next local day somewhere east; only UTC matters.
	fetched := time.Date(2025, 6, 3, 23, 30, 0, 0, time.UTC)
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2025, 6, 4, 8, 0, 0, 0, loc) // still June 3 UTC

	require.True(t, CalendarDay().Fresh(fetched, now))
}

func TestTTLValidity(t *testing.T) {
	fetched := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	v := TTL(time.Hour)

	require.True(t, v.Fresh(fetched, fetched.Add(59*time.Minute)))
	require.False(t, v.Fresh(fetched, fetched.Add(time.Hour)))
	require.False(t, TTL(0).Fresh(fetched, fetched))
}
