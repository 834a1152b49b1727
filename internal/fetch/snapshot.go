package fetch

import (
	"context"
	"time"

	"coinlake/internal/cache"
	"coinlake/internal/objcache"
)

// SnapshotGuard enforces the once-per-day rule for global snapshots. The
// check always goes to the remote tier; a local copy proves nothing about
// what other machines captured today.
type SnapshotGuard struct {
	cache  *objcache.Cache
	bucket string
}

// NewSnapshotGuard builds a guard over the shared cache.
func NewSnapshotGuard(store *objcache.Cache, bucket string) *SnapshotGuard {
	return &SnapshotGuard{cache: store, bucket: bucket}
}

// Key returns the snapshot address for one kind and UTC day.
func (g *SnapshotGuard) Key(kind cache.DataKind, day time.Time) string {
	return cache.DailySnapshotKey(g.bucket, kind, day)
}

// AlreadyCaptured reports whether today's snapshot exists remotely. A
// remote tier failure propagates; guessing would risk a duplicate
// capture.
func (g *SnapshotGuard) AlreadyCaptured(ctx context.Context, kind cache.DataKind, day time.Time) (bool, error) {
	return g.cache.Exists(ctx, g.Key(kind, day))
}

// Store persists the captured snapshot under today's key, making later
// AlreadyCaptured calls true for every process sharing the remote tier.
func (g *SnapshotGuard) Store(ctx context.Context, kind cache.DataKind, day time.Time, payload []byte) error {
	return g.cache.Put(ctx, g.Key(kind, day), payload)
}
