package objcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "coinlake/internal/cache"
)

// StorageError reports a cache tier I/O failure. Logical absence of a key
// is never an error; only the remote tier surfaces StorageError to callers
// because it is the team-shared source of truth.
type StorageError struct {
	Tier string
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("objcache: %s tier key=%s: %v", e.Tier, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// entry is the envelope stored in both tiers. Entries are replaced
// wholesale on refetch, never mutated.
type entry struct {
	Payload   []byte `msgpack:"payload"`
	FetchedAt int64  `msgpack:"fetched_at"` // unix seconds, UTC
}

// Cache is the two-tier object store: a disposable local disk tier in
// front of a durable remote tier shared across processes. The local tier
// may be wiped between runs with no correctness impact.
type Cache struct {
	localDir string
	remote   *redis.Redis
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source, used by freshness tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New opens the cache, creating the local tier directory if needed.
func New(localDir string, remote *redis.Redis, opts ...Option) (*Cache, error) {
	if strings.TrimSpace(localDir) == "" {
		return nil, fmt.Errorf("objcache: local dir is required")
	}
	if remote == nil {
		return nil, fmt.Errorf("objcache: remote store is required")
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, &StorageError{Tier: "local", Key: localDir, Err: err}
	}
	c := &Cache{localDir: localDir, remote: remote, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the payload and fetch time for key. The local tier is
// checked first; a remote hit is copied into the local tier on the way
// back (write-through-on-read). A miss returns found=false and a nil
// error.
func (c *Cache) Get(ctx context.Context, key string) (payload []byte, fetchedAt time.Time, found bool, err error) {
	if ent, ok := c.readLocal(ctx, key); ok {
		return ent.Payload, time.Unix(ent.FetchedAt, 0).UTC(), true, nil
	}

	raw, err := c.remote.GetCtx(ctx, key)
	if err != nil {
		return nil, time.Time{}, false, &StorageError{Tier: "remote", Key: key, Err: err}
	}
	if raw == "" {
		return nil, time.Time{}, false, nil
	}
	var ent entry
	if err := msgpack.Unmarshal([]byte(raw), &ent); err != nil {
		return nil, time.Time{}, false, &StorageError{Tier: "remote", Key: key, Err: err}
	}
	c.writeLocal(ctx, key, ent)
	return ent.Payload, time.Unix(ent.FetchedAt, 0).UTC(), true, nil
}

// Put writes the payload to both tiers. The local write is best-effort;
// the remote write must succeed or the whole operation fails, since only
// the remote tier is durable.
func (c *Cache) Put(ctx context.Context, key string, payload []byte) error {
	ent := entry{Payload: payload, FetchedAt: c.now().UTC().Unix()}
	encoded, err := msgpack.Marshal(ent)
	if err != nil {
		return &StorageError{Tier: "remote", Key: key, Err: err}
	}
	if err := c.remote.SetCtx(ctx, key, string(encoded)); err != nil {
		return &StorageError{Tier: "remote", Key: key, Err: err}
	}
	c.writeLocal(ctx, key, ent)
	return nil
}

// IsFresh evaluates the validity rule against the entry's fetch time. A
// stale entry is reported not fresh but is left in place; the refetch
// that follows overwrites it.
func (c *Cache) IsFresh(ctx context.Context, key string, validity cachekeys.Validity) (bool, error) {
	_, fetchedAt, found, err := c.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return validity.Fresh(fetchedAt, c.now()), nil
}

// Exists performs the single authoritative remote existence check used by
// the daily snapshot guard. It deliberately bypasses the local tier.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := c.remote.ExistsCtx(ctx, key)
	if err != nil {
		return false, &StorageError{Tier: "remote", Key: key, Err: err}
	}
	return ok, nil
}

// Fresh is a convenience wrapper combining Get with a validity check so
// callers avoid a second round trip.
func (c *Cache) Fresh(ctx context.Context, key string, validity cachekeys.Validity) ([]byte, bool, error) {
	payload, fetchedAt, found, err := c.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found || !validity.Fresh(fetchedAt, c.now()) {
		return nil, false, nil
	}
	return payload, true, nil
}

// Close tears the cache down. The local tier stays on disk; it is an
// accelerator, not state that needs flushing.
func (c *Cache) Close() error { return nil }

func (c *Cache) localPath(key string) string {
	return filepath.Join(c.localDir, strings.ReplaceAll(key, ":", "__"))
}

func (c *Cache) readLocal(ctx context.Context, key string) (entry, bool) {
	raw, err := os.ReadFile(c.localPath(key))
	if err != nil {
		return entry{}, false
	}
	var ent entry
	if err := msgpack.Unmarshal(raw, &ent); err != nil {
		logx.WithContext(ctx).Errorf("objcache: corrupt local entry key=%s err=%v", key, err)
		return entry{}, false
	}
	return ent, true
}

func (c *Cache) writeLocal(ctx context.Context, key string, ent entry) {
	encoded, err := msgpack.Marshal(ent)
	if err != nil {
		logx.WithContext(ctx).Errorf("objcache: encode local entry key=%s err=%v", key, err)
		return
	}
	if err := os.WriteFile(c.localPath(key), encoded, 0o644); err != nil {
		logx.WithContext(ctx).Errorf("objcache: write local entry key=%s err=%v", key, err)
	}
}
