package svc

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"coinlake/internal/canonical"
	"coinlake/internal/config"
	"coinlake/internal/fetch"
	"coinlake/internal/identity"
	"coinlake/internal/lake"
	"coinlake/internal/objcache"
	"coinlake/internal/quality"
	"coinlake/internal/runlog"
	providerpkg "coinlake/pkg/provider"
	_ "coinlake/pkg/provider/coingecko"
	_ "coinlake/pkg/provider/defillama"
	_ "coinlake/pkg/provider/lunarcrush"
)

// ServiceContext wires the shared dependencies every pipeline run needs:
// the two-tier cache, provider clients, rate limiters, and output writer.
type ServiceContext struct {
	Config config.Config

	Redis       *redis.Redis
	Cache       *objcache.Cache
	Providers   map[string]providerpkg.Provider
	Limiters    map[string]*fetch.Limiter
	Retry       *fetch.RetryHandler
	Coordinator *fetch.Coordinator
	Guard       *fetch.SnapshotGuard
	Identity    *identity.Map
	Engine      *canonical.Engine
	Gate        *quality.Gate
	Lake        *lake.Writer

	// Optional, present only when Postgres is configured.
	DBConn    sqlx.SqlConn
	Overrides identity.OverridesRepo
	RunLog    runlog.Recorder
}

// NewServiceContext builds the context or fails with an error; pipelines
// cannot run partially wired.
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	svc := &ServiceContext{Config: c}

	store, err := redis.NewRedis(c.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	svc.Redis = store

	cache, err := objcache.New(c.Cache.LocalPath, store)
	if err != nil {
		return nil, fmt.Errorf("open object cache: %w", err)
	}
	svc.Cache = cache

	if c.Provider.Value == nil {
		return nil, fmt.Errorf("provider config is required")
	}
	providers, err := c.Provider.Value.BuildProviders()
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	svc.Providers = providers

	limiters := make(map[string]*fetch.Limiter, len(providers))
	for name := range providers {
		limiters[name] = fetch.NewLimiter(fetch.LimiterConfig{
			RequestsPerSecond: c.RateLimit.RequestsPerSecond,
			Burst:             c.RateLimit.Burst,
		}, store, name)
	}

	initialBackoff, err := c.Retry.InitialBackoff()
	if err != nil {
		return nil, err
	}
	maxBackoff, err := c.Retry.MaxBackoff()
	if err != nil {
		return nil, err
	}
	retry := fetch.NewRetryHandler(fetch.RetryConfig{
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
		Multiplier:     c.Retry.Multiplier,
	})
	svc.Limiters = limiters
	svc.Retry = retry

	svc.Coordinator = fetch.NewCoordinator(cache, providers, limiters, retry, c.Cache.Bucket)
	svc.Guard = fetch.NewSnapshotGuard(cache, c.Cache.Bucket)

	idMap := c.Identity.Value
	if idMap == nil {
		idMap, _ = identity.NewMap(nil)
	}
	svc.Identity = idMap
	svc.Engine = canonical.New(idMap.Rank)

	gateCfg := quality.DefaultConfig()
	gateCfg.LossThreshold = c.Quality.LossThreshold
	gateCfg.PricePrecision = c.Quality.PricePrecision
	gateCfg.Tolerance = c.Quality.Tolerance
	if len(c.Quality.RequiredMetrics) > 0 {
		gateCfg.RequiredMetrics = c.Quality.RequiredMetrics
	}
	svc.Gate = quality.New(gateCfg)

	writer, err := lake.NewWriter(c.Output.Dir)
	if err != nil {
		return nil, err
	}
	svc.Lake = writer

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.Overrides = identity.NewOverridesRepo(conn)
		svc.RunLog = runlog.NewRecorder(conn)
	}
	return svc, nil
}

// LoadOverrides layers database identity overrides onto the base map.
// Call once at startup; skipped silently when Postgres is not configured.
func (s *ServiceContext) LoadOverrides(ctx context.Context) error {
	if s.Overrides == nil {
		return nil
	}
	overrides, err := s.Overrides.Load(ctx)
	if err != nil {
		return fmt.Errorf("load identity overrides: %w", err)
	}
	s.Identity.ApplyOverrides(overrides)
	logx.WithContext(ctx).Infof("svc: applied %d identity overrides", len(overrides))
	return nil
}

// Close releases held resources.
func (s *ServiceContext) Close() error {
	if s.Cache != nil {
		return s.Cache.Close()
	}
	return nil
}
