package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"

	"coinlake/internal/cache"
	"coinlake/internal/objcache"
	"coinlake/internal/record"
	"coinlake/pkg/provider"
)

type stubProvider struct {
	calls  int64
	points []provider.Point
	err    error
}

func (s *stubProvider) FetchSeries(ctx context.Context, req provider.Request) ([]provider.Point, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.points, nil
}

func newTestCoordinator(t *testing.T, p provider.Provider) *Coordinator {
	t.Helper()
	store := redistest.CreateRedis(t)
	c, err := objcache.New(t.TempDir(), store)
	require.NoError(t, err)
	retry := NewRetryHandler(RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond})
	return NewCoordinator(c, map[string]provider.Provider{"stub": p}, nil, retry, "coinlake")
}

func stubRequest() Request {
	return Request{
		Provider:  "stub",
		VariantID: "bitcoin",
		Kind:      cache.KindMarketChart,
		Period:    "max",
		Validity:  cache.CalendarDay(),
	}
}

func TestFetchIdempotentWithinValidity(t *testing.T) {
	stub := &stubProvider{points: []provider.Point{
		{Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Metrics: map[string]float64{"close": 100}},
		{Timestamp: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), Metrics: map[string]float64{"close": 101}},
	}}
	coord := newTestCoordinator(t, stub)
	ctx := context.Background()

	first, err := coord.Fetch(ctx, stubRequest())
	require.NoError(t, err)
	second, err := coord.Fetch(ctx, stubRequest())
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt64(&stub.calls))
	require.Equal(t, first, second)
}

func TestFetchNormalizesRows(t *testing.T) {
	stub := &stubProvider{points: []provider.Point{
		{Timestamp: time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC), Metrics: map[string]float64{"close": 101}},
		{Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), Metrics: map[string]float64{"close": 100}},
	}}
	coord := newTestCoordinator(t, stub)

	rows, err := coord.Fetch(context.Background(), stubRequest())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "bitcoin", rows[0].VariantID)
	require.Equal(t, record.Day(rows[0].Timestamp), rows[0].Timestamp)
	require.True(t, rows[0].Timestamp.Before(rows[1].Timestamp))
}

func TestFetchTransientExhaustionIsProviderUnavailable(t *testing.T) {
	stub := &stubProvider{err: provider.Transient(errors.New("upstream 503"))}
	coord := newTestCoordinator(t, stub)

	_, err := coord.Fetch(context.Background(), stubRequest())
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, ReasonProviderUnavailable, fetchErr.Reason)
	require.EqualValues(t, 2, atomic.LoadInt64(&stub.calls))
}

func TestFetchPermanentNotRetried(t *testing.T) {
	stub := &stubProvider{err: provider.Permanent(errors.New("unknown asset"))}
	coord := newTestCoordinator(t, stub)

	_, err := coord.Fetch(context.Background(), stubRequest())
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, ReasonPermanent, fetchErr.Reason)
	require.EqualValues(t, 1, atomic.LoadInt64(&stub.calls))
}

func TestFetchUnknownProvider(t *testing.T) {
	coord := newTestCoordinator(t, &stubProvider{})

	req := stubRequest()
	req.Provider = "nonexistent"
	_, err := coord.Fetch(context.Background(), req)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, ReasonPermanent, fetchErr.Reason)
}

func TestFetchFailureIsNotCached(t *testing.T) {
	stub := &stubProvider{err: provider.Permanent(errors.New("boom"))}
	coord := newTestCoordinator(t, stub)
	ctx := context.Background()

	_, err := coord.Fetch(ctx, stubRequest())
	require.Error(t, err)

	// Provider recovers; the next fetch must go out again instead of
	// serving a cached failure.
	stub.err = nil
	stub.points = []provider.Point{
		{Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Metrics: map[string]float64{"close": 100}},
	}
	rows, err := coord.Fetch(ctx, stubRequest())
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSnapshotGuard(t *testing.T) {
	store := redistest.CreateRedis(t)
	c, err := objcache.New(t.TempDir(), store)
	require.NoError(t, err)
	guard := NewSnapshotGuard(c, "coinlake")
	ctx := context.Background()
	day := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

	captured, err := guard.AlreadyCaptured(ctx, cache.KindDerivatives, day)
	require.NoError(t, err)
	require.False(t, captured)

	require.NoError(t, guard.Store(ctx, cache.KindDerivatives, day, []byte("snap")))

	captured, err = guard.AlreadyCaptured(ctx, cache.KindDerivatives, day)
	require.NoError(t, err)
	require.True(t, captured)

	// A different day is a different snapshot.
	captured, err = guard.AlreadyCaptured(ctx, cache.KindDerivatives, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.False(t, captured)
}
