package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/limit"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

const permitPollInterval = 100 * time.Millisecond

// LimiterConfig shapes the shared per-provider request budget.
type LimiterConfig struct {
	RequestsPerSecond int
	Burst             int
}

// Limiter hands out request permits against a token bucket shared across
// workers and processes. A nil Limiter grants every permit.
type Limiter struct {
	tokens *limit.TokenLimiter
}

// NewLimiter builds a token-bucket limiter keyed per provider. The bucket
// state lives in Redis so concurrent runs share one budget.
func NewLimiter(cfg LimiterConfig, store *redis.Redis, providerName string) *Limiter {
	rate := cfg.RequestsPerSecond
	if rate <= 0 {
		rate = 1
	}
	burst := cfg.Burst
	if burst < rate {
		burst = rate
	}
	key := fmt.Sprintf("coinlake:ratelimit:%s", providerName)
	return &Limiter{tokens: limit.NewTokenLimiter(rate, burst, store, key)}
}

// Acquire blocks until a permit is granted or ctx is done. Workers call
// this immediately before every external request, never before a cache
// hit.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.tokens == nil {
		return nil
	}
	for {
		if l.tokens.AllowCtx(ctx) {
			return nil
		}
		select {
		case <-time.After(permitPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
