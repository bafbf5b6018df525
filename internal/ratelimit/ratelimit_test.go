package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flightclub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestChargeLimiterDisabledWithoutRedis(t *testing.T) {
	limiter, err := NewChargeLimiter(Params{
		Cfg: config.Config{ChargeRateLimit: 2, ChargeRateBurst: 10},
		Log: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())
	assert.True(t, limiter.Allow(context.Background(), "user:7", CostBatchCharge).Allowed)
}

func TestChargeLimiterDisabledByZeroRate(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewChargeLimiter(Params{
		Cfg:    config.Config{ChargeRateLimit: 0, ChargeRateBurst: 10},
		Log:    zaptest.NewLogger(t),
		Client: client,
	})
	require.NoError(t, err)
	assert.False(t, limiter.Enabled())
}

func TestChargeLimiterRejectsZeroBurst(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewChargeLimiter(Params{
		Cfg:    config.Config{ChargeRateLimit: 1, ChargeRateBurst: 0},
		Log:    zaptest.NewLogger(t),
		Client: client,
	})
	assert.ErrorIs(t, err, ErrInvalidBurst)
}

func TestChargeLimiterFailsOpenOnRedisError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewChargeLimiter(Params{
		Cfg:    config.Config{ChargeRateLimit: 1, ChargeRateBurst: 3},
		Log:    zaptest.NewLogger(t),
		Client: client,
	})
	require.NoError(t, err)
	require.True(t, limiter.Enabled())

	res := limiter.Allow(context.Background(), "user:7", CostSingleCharge)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
}

func TestTokenBucketValidatesInput(t *testing.T) {
	ctx := context.Background()
	var nilBucket *TokenBucket
	_, err := nilBucket.Take(ctx, "k", Limit{Rate: 1, Burst: 1}, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	bucket := NewTokenBucket(client)

	_, err = bucket.Take(ctx, "", Limit{Rate: 1, Burst: 1}, 1)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = bucket.Take(ctx, "k", Limit{Rate: 0, Burst: 1}, 1)
	assert.ErrorIs(t, err, ErrInvalidRate)
	_, err = bucket.Take(ctx, "k", Limit{Rate: 1, Burst: 0}, 1)
	assert.ErrorIs(t, err, ErrInvalidBurst)
	_, err = bucket.Take(ctx, "k", Limit{Rate: 1, Burst: 3}, 4)
	assert.ErrorIs(t, err, ErrInvalidCost)
	_, err = bucket.Take(ctx, "k", Limit{Rate: 1, Burst: 3}, 0)
	assert.ErrorIs(t, err, ErrInvalidCost)
}

func TestLimitTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, Limit{Rate: 1, Burst: 10}.ttl())
	assert.Equal(t, time.Second, Limit{Rate: 100, Burst: 1}.ttl())
	assert.Equal(t, time.Second, Limit{}.ttl())
}

func TestParseResult(t *testing.T) {
	limit := Limit{Rate: 2, Burst: 10}

	res, err := parseResult([]any{int64(1), int64(4500), int64(0)}, limit)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, 10, res.Limit)

	res, err = parseResult([]any{int64(0), "250", "1500"}, limit)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 1500*time.Millisecond, res.RetryAfter)

	_, err = parseResult([]any{int64(1)}, limit)
	assert.Error(t, err)
}

func TestChargeKey(t *testing.T) {
	assert.Equal(t, "flightclub:ratelimit:charge:user:7", ChargeKey(" user:7 "))
}
