package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The script answers {allowed, remaining milli-tokens, wait ms}. Lua numbers
// are truncated to integers on return, hence the milli-token scaling.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local clock = redis.call("TIME")
local now = (clock[1] * 1000) + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local ts = tonumber(state[2])

if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - ts)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local allowed = 0
local wait = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
else
  wait = math.ceil(((cost - tokens) / rate) * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(tokens * 1000), wait}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrEmptyKey      = errors.New("rate limiter key is empty")
	ErrInvalidRate   = errors.New("rate limiter rate must be positive")
	ErrInvalidBurst  = errors.New("rate limiter burst must be positive")
	ErrInvalidCost   = errors.New("rate limiter cost must be between 1 and burst")
)

// Limit is a refill rate in tokens per second and a bucket size.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) validate() error {
	switch {
	case l.Rate <= 0:
		return ErrInvalidRate
	case l.Burst <= 0:
		return ErrInvalidBurst
	}
	return nil
}

// ttl keeps an idle bucket for twice its full refill time.
func (l Limit) ttl() time.Duration {
	if l.Rate <= 0 || l.Burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(float64(l.Burst)/l.Rate*2))
	return time.Duration(seconds) * time.Second
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Take spends cost tokens from the bucket at key.
func (t *TokenBucket) Take(ctx context.Context, key string, limit Limit, cost int) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrNotConfigured
	}
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if err := limit.validate(); err != nil {
		return Result{}, err
	}
	if cost < 1 || cost > limit.Burst {
		return Result{}, ErrInvalidCost
	}

	res, err := t.script.Run(ctx, t.client, []string{key},
		limit.Rate,
		limit.Burst,
		cost,
		limit.ttl().Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, err
	}
	return parseResult(res, limit)
}

func parseResult(res []any, limit Limit) (Result, error) {
	if len(res) < 3 {
		return Result{}, errors.New("invalid rate limit script response")
	}
	return Result{
		Allowed:    toInt64(res[0]) == 1,
		Limit:      limit.Burst,
		Remaining:  int(toInt64(res[1]) / 1000),
		RetryAfter: time.Duration(toInt64(res[2])) * time.Millisecond,
	}, nil
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}
