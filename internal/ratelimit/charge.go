package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flightclub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyCharge = "flightclub:ratelimit:charge:%s"

// Request costs in tokens. A batch run posts many flights at once.
const (
	CostSingleCharge = 1
	CostBatchCharge  = 5
)

type Params struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Client *redis.Client `optional:"true"`
}

// ChargeLimiter throttles charging requests per actor. A nil limiter allows
// everything.
type ChargeLimiter struct {
	bucket *TokenBucket
	limit  Limit
	log    *zap.Logger
}

func NewChargeLimiter(p Params) (*ChargeLimiter, error) {
	if p.Client == nil || p.Cfg.ChargeRateLimit <= 0 {
		p.Log.Info("charge rate limiting disabled")
		return nil, nil
	}
	limit := Limit{Rate: p.Cfg.ChargeRateLimit, Burst: p.Cfg.ChargeRateBurst}
	if err := limit.validate(); err != nil {
		return nil, err
	}
	return &ChargeLimiter{
		bucket: NewTokenBucket(p.Client),
		limit:  limit,
		log:    p.Log.Named("ratelimit.charge"),
	}, nil
}

func (l *ChargeLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func ChargeKey(subject string) string {
	return fmt.Sprintf(keyCharge, strings.TrimSpace(subject))
}

// Allow spends cost tokens for subject, capped at the burst so that an
// expensive request can still pass on a full bucket. Redis failures let the
// request through.
func (l *ChargeLimiter) Allow(ctx context.Context, subject string, cost int) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}
	cost = max(1, min(cost, l.limit.Burst))
	res, err := l.bucket.Take(ctx, ChargeKey(subject), l.limit, cost)
	if err != nil {
		l.log.Warn("charge rate limit unavailable", zap.String("subject", subject), zap.Error(err))
		return Result{Allowed: true, Limit: l.limit.Burst}
	}
	if !res.Allowed {
		l.log.Info("charge rate limited",
			zap.String("subject", subject),
			zap.Int("cost", cost),
			zap.Duration("retry_after", res.RetryAfter),
		)
	}
	return res
}
