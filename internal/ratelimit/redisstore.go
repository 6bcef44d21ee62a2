package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter mirrors Limiter's token-bucket Allow semantics but stores
// bucket state in Redis, so multiple Gateway replicas behind a load
// balancer share a single rate-limit view per API key.
type RedisLimiter struct {
	rdb  *redis.Client
	rate float64
}

// NewRedisLimiter connects to Redis and returns a RedisLimiter, or an
// error if the connection cannot be established (caller decides whether
// to fall back to the in-memory Limiter).
func NewRedisLimiter(addr, password string, db int, rate float64) (*RedisLimiter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ratelimit: redis ping failed (%s): %w", addr, err)
	}

	slog.Info("rate limiter using redis backend", "addr", addr, "db", db)
	return &RedisLimiter{rdb: rdb, rate: rate}, nil
}

// luaRefillAndTake implements the same continuous-refill bucket as
// Limiter.Allow but atomically, since Redis sees concurrent requests from
// every Gateway replica.
const luaRefillAndTake = `
local tokens_key = KEYS[1]
local refill_key = KEYS[2]
local rate = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

local tokens = tonumber(redis.call('GET', tokens_key))
local last = tonumber(redis.call('GET', refill_key))
if tokens == nil or last == nil then
  tokens = rate
  last = now
end

local elapsed = now - last
if elapsed > 0 then
  tokens = math.min(rate, tokens + elapsed * rate)
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('SET', tokens_key, tokens, 'EX', 3600)
redis.call('SET', refill_key, now, 'EX', 3600)
return allowed
`

// Allow consumes one token from key's distributed bucket.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := r.rdb.Eval(ctx, luaRefillAndTake, []string{
		"ratelimit:{" + key + "}:tokens",
		"ratelimit:{" + key + "}:last",
	}, r.rate, now).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis eval: %w", err)
	}
	allowed, _ := res.(int64)
	return allowed == 1, nil
}

// Close releases the underlying Redis client.
func (r *RedisLimiter) Close() error {
	return r.rdb.Close()
}
