// Package lock serializes charge and reversal work per flight across
// processes using Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flightclub/internal/config"
	"github.com/smallbiznis/flightclub/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyFlight = "flightclub:lock:flight:%s"

var ErrBusy = errors.New("flight_busy")

// FlightLocker runs fn while holding the per-flight lock.
type FlightLocker interface {
	WithFlight(ctx context.Context, flightID snowflake.ID, fn func(ctx context.Context) error) error
}

type Params struct {
	fx.In

	Client  *redis.Client `optional:"true"`
	Billing *config.BillingConfigHolder
	Log     *zap.Logger
}

// Locker is a Redis lock client. A Locker without a client runs fn directly.
type Locker struct {
	client  *redislock.Client
	billing *config.BillingConfigHolder
	log     *zap.Logger
}

func New(p Params) FlightLocker {
	l := &Locker{billing: p.Billing, log: p.Log.Named("lock")}
	if p.Client != nil {
		l.client = redislock.New(p.Client)
	}
	return l
}

// Noop returns a locker that never contends.
func Noop() FlightLocker {
	return &Locker{log: zap.NewNop()}
}

func FlightKey(flightID snowflake.ID) string {
	return fmt.Sprintf(keyFlight, strings.TrimSpace(flightID.String()))
}

func (l *Locker) WithFlight(ctx context.Context, flightID snowflake.ID, fn func(ctx context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}

	ttl := l.billing.Get().FlightLockTTL
	lk, err := l.client.Obtain(ctx, FlightKey(flightID), ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 5),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrBusy
	}
	if err != nil {
		return fmt.Errorf("obtain flight lock: %w", err)
	}
	defer func() {
		// Release with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn("failed to release flight lock",
				logger.FlightID(flightID),
				zap.Error(err),
			)
		}
	}()

	return fn(ctx)
}

// NewRedisClient returns nil when no Redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Info("redis not configured; flight locking relies on row state only")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return client, nil
}

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)
