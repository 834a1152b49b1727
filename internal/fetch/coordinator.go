// Package fetch owns the path between a pipeline and the outside world:
// cache-first lookup, shared rate-limit permits, bounded retries, and the
// final classification of failures.
package fetch

import (
	"context"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"

	"coinlake/internal/cache"
	"coinlake/internal/objcache"
	"coinlake/internal/record"
	"coinlake/pkg/provider"
)

// Request identifies one logical fetch and the validity rule that decides
// whether a cached copy may serve it.
type Request struct {
	Provider  string
	VariantID string
	Kind      cache.DataKind
	Period    string
	Validity  cache.Validity
}

// Coordinator sits between pipelines and providers. Every fetch goes
// cache-first; concurrent identical requests collapse to a single
// provider call; a permit is acquired only when a real request is about
// to leave the process.
type Coordinator struct {
	cache     *objcache.Cache
	providers map[string]provider.Provider
	limiters  map[string]*Limiter
	retry     *RetryHandler
	bucket    string
	flight    syncx.SingleFlight
}

// NewCoordinator wires a coordinator. limiters is keyed by provider name;
// a missing entry means the provider is unthrottled.
func NewCoordinator(store *objcache.Cache, providers map[string]provider.Provider, limiters map[string]*Limiter, retry *RetryHandler, bucket string) *Coordinator {
	if retry == nil {
		retry = NewRetryHandler(RetryConfig{})
	}
	return &Coordinator{
		cache:     store,
		providers: providers,
		limiters:  limiters,
		retry:     retry,
		bucket:    bucket,
		flight:    syncx.NewSingleFlight(),
	}
}

// Fetch returns the series for req, from cache when a fresh copy exists,
// otherwise from the provider. Rows come back day-normalized and sorted
// by timestamp.
func (c *Coordinator) Fetch(ctx context.Context, req Request) ([]record.TimeSeries, error) {
	key := cache.SeriesKey(c.bucket, req.Provider, req.VariantID, req.Kind, req.Period)

	if payload, ok, err := c.cache.Fresh(ctx, key, req.Validity); err != nil {
		return nil, err
	} else if ok {
		return c.decode(req, key, payload)
	}

	raw, err := c.flight.Do(key, func() (interface{}, error) {
		// A sibling worker may have refilled the entry while this
		// request waited its turn.
		if payload, ok, err := c.cache.Fresh(ctx, key, req.Validity); err != nil {
			return nil, err
		} else if ok {
			return payload, nil
		}
		return c.fetchRemote(ctx, req, key)
	})
	if err != nil {
		return nil, err
	}
	return c.decode(req, key, raw.([]byte))
}

func (c *Coordinator) fetchRemote(ctx context.Context, req Request, key string) ([]byte, error) {
	p, ok := c.providers[req.Provider]
	if !ok {
		return nil, &FetchError{
			Provider: req.Provider, Variant: req.VariantID, Kind: string(req.Kind),
			Reason: ReasonPermanent,
			Err:    fmt.Errorf("unknown provider %q", req.Provider),
		}
	}

	var points []provider.Point
	err := c.retry.Do(ctx, func() error {
		if err := c.limiters[req.Provider].Acquire(ctx); err != nil {
			return err
		}
		var ferr error
		points, ferr = p.FetchSeries(ctx, provider.Request{
			VariantID: req.VariantID,
			Kind:      string(req.Kind),
			Period:    req.Period,
		})
		return ferr
	})
	if err != nil {
		return nil, c.classify(req, err)
	}

	payload, err := msgpack.Marshal(points)
	if err != nil {
		return nil, &FetchError{
			Provider: req.Provider, Variant: req.VariantID, Kind: string(req.Kind),
			Reason: ReasonPermanent, Err: err,
		}
	}
	if err := c.cache.Put(ctx, key, payload); err != nil {
		// Data in hand beats a durable copy. The next run refetches.
		logx.WithContext(ctx).Errorf("fetch: cache put failed key=%s err=%v", key, err)
	}
	return payload, nil
}

// classify folds a terminal provider error into the fetch error taxonomy.
// Context cancellation is not a fetch failure and passes through as-is.
func (c *Coordinator) classify(req Request, err error) error {
	if ctxErr := contextCause(err); ctxErr != nil {
		return ctxErr
	}
	reason := ReasonProviderUnavailable
	if provider.IsPermanent(err) {
		reason = ReasonPermanent
	}
	return &FetchError{
		Provider: req.Provider, Variant: req.VariantID, Kind: string(req.Kind),
		Reason: reason, Err: err,
	}
}

func contextCause(err error) error {
	switch {
	case err == nil:
		return nil
	case err == context.Canceled, err == context.DeadlineExceeded:
		return err
	}
	return nil
}

func (c *Coordinator) decode(req Request, key string, payload []byte) ([]record.TimeSeries, error) {
	var points []provider.Point
	if err := msgpack.Unmarshal(payload, &points); err != nil {
		return nil, &objcache.StorageError{Tier: "remote", Key: key, Err: err}
	}

	rows := make([]record.TimeSeries, 0, len(points))
	for _, pt := range points {
		if len(pt.Metrics) == 0 {
			continue
		}
		metrics := make(map[string]float64, len(pt.Metrics))
		for name, value := range pt.Metrics {
			metrics[name] = value
		}
		rows = append(rows, record.TimeSeries{
			VariantID: req.VariantID,
			Source:    req.Provider + ":" + string(req.Kind),
			Timestamp: record.Day(pt.Timestamp),
			Metrics:   metrics,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return rows, nil
}

// Bucket exposes the cache key namespace for callers composing keys of
// their own, such as the snapshot guard.
func (c *Coordinator) Bucket() string { return c.bucket }
