package ratelimit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 and REDIS_ADDR to run redis tests")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTokenBucketTakeRedis(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	bucket := NewTokenBucket(client)
	key := ChargeKey(fmt.Sprintf("test-%d", time.Now().UnixNano()))
	t.Cleanup(func() { client.Del(context.Background(), key) })

	limit := Limit{Rate: 0.5, Burst: 3}
	for i := 0; i < 3; i++ {
		res, err := bucket.Take(ctx, key, limit, 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "take %d", i)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := bucket.Take(ctx, key, limit, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, 2*time.Second)

	ttl, err := client.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, limit.ttl())

	_, err = bucket.Take(ctx, key, limit, 4)
	assert.ErrorIs(t, err, ErrInvalidCost)
}
