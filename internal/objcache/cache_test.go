package objcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"

	cachekeys "coinlake/internal/cache"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store := redistest.CreateRedis(t)
	c, err := New(t.TempDir(), store)
	require.NoError(t, err)
	return c
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "coinlake:series:test:btc:ohlc:max", []byte("payload")))

	payload, fetchedAt, found, err := c.Get(ctx, "coinlake:series:test:btc:ohlc:max")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("payload"), payload)
	require.WithinDuration(t, time.Now(), fetchedAt, 5*time.Second)
}

func TestCacheMissIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	_, _, found, err := c.Get(context.Background(), "coinlake:series:test:nothing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCacheRemoteHitRefillsLocalTier(t *testing.T) {
	store := redistest.CreateRedis(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	ctx := context.Background()

	writer, err := New(dirA, store)
	require.NoError(t, err)
	require.NoError(t, writer.Put(ctx, "coinlake:series:test:shared", []byte("shared")))

	// Second process with a cold local tier sees the remote copy.
	reader, err := New(dirB, store)
	require.NoError(t, err)
	payload, _, found, err := reader.Get(ctx, "coinlake:series:test:shared")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("shared"), payload)

	// And the read should have warmed its local tier.
	entries, err := os.ReadDir(dirB)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestCacheSurvivesLocalTierWipe(t *testing.T) {
	store := redistest.CreateRedis(t)
	dir := t.TempDir()
	ctx := context.Background()

	c, err := New(dir, store)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "coinlake:series:test:wipe", []byte("durable")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NoError(t, os.Remove(filepath.Join(dir, entry.Name())))
	}

	payload, _, found, err := c.Get(ctx, "coinlake:series:test:wipe")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("durable"), payload)
}

func TestCacheCorruptLocalEntryFallsThrough(t *testing.T) {
	store := redistest.CreateRedis(t)
	dir := t.TempDir()
	ctx := context.Background()

	c, err := New(dir, store)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "coinlake:series:test:corrupt", []byte("good")))

	require.NoError(t, os.WriteFile(c.localPath("coinlake:series:test:corrupt"), []byte("not msgpack"), 0o644))

	payload, _, found, err := c.Get(ctx, "coinlake:series:test:corrupt")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("good"), payload)
}

func TestCacheFreshness(t *testing.T) {
	store := redistest.CreateRedis(t)
	now := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c, err := New(t.TempDir(), store, WithClock(clock))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "coinlake:snapshot:derivatives:2025-06-03", []byte("snap")))

	fresh, err := c.IsFresh(ctx, "coinlake:snapshot:derivatives:2025-06-03", cachekeys.CalendarDay())
	require.NoError(t, err)
	require.True(t, fresh)

	// Cross the UTC day boundary; the entry goes stale but stays present.
	now = time.Date(2025, 6, 4, 0, 1, 0, 0, time.UTC)
	fresh, err = c.IsFresh(ctx, "coinlake:snapshot:derivatives:2025-06-03", cachekeys.CalendarDay())
	require.NoError(t, err)
	require.False(t, fresh)

	_, _, found, err := c.Get(ctx, "coinlake:snapshot:derivatives:2025-06-03")
	require.NoError(t, err)
	require.True(t, found)
}

func TestCacheExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "coinlake:snapshot:derivatives:2025-06-03")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, "coinlake:snapshot:derivatives:2025-06-03", []byte("snap")))

	ok, err = c.Exists(ctx, "coinlake:snapshot:derivatives:2025-06-03")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewRejectsMissingPieces(t *testing.T) {
	store := redistest.CreateRedis(t)

	_, err := New("", store)
	require.Error(t, err)

	_, err = New(t.TempDir(), nil)
	require.Error(t, err)
}
