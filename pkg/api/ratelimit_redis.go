package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript runs the token-bucket algorithm atomically in
// Redis so the rate limit holds across every server instance sharing one
// Redis deployment, not just within one process.
//
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp, microsecond precision
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisRateLimiter is the GlobalRateLimiter's distributed counterpart:
// same token-bucket shape, shared across every server process via Redis
// instead of an in-memory map. Buckets key on API key rather than IP,
// since a fleet behind a load balancer sees many IPs for one caller.
type RedisRateLimiter struct {
	client *redis.Client
	rps    float64
	burst  int
}

// NewRedisRateLimiter builds a RedisRateLimiter allowing rps requests/sec
// per caller with the given burst.
func NewRedisRateLimiter(client *redis.Client, rps, burst int) *RedisRateLimiter {
	r := float64(rps)
	if r <= 0 {
		r = 1
	}
	return &RedisRateLimiter{client: client, rps: r, burst: burst}
}

func (rl *RedisRateLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, rl.client, []string{"ratelimit:" + key}, rl.rps, rl.burst, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("api: redis rate limiter: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("api: unexpected redis limiter response")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// clientKey identifies the caller a bucket is keyed on: the asserted API
// key when present, falling back to remote IP for unauthenticated routes
// (the well-known discovery endpoints sit in front of AuthMiddleware).
func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware enforces the rate limit. A Redis error fails open: callers
// must not lose the API because the limiter's backing store is down.
func (rl *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := rl.allow(r.Context(), clientKey(r))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			WriteTooManyRequests(w, r, 5)
			return
		}
		next.ServeHTTP(w, r)
	})
}
