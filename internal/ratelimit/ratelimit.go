// Package ratelimit throttles ingest requests with a Redis token bucket
// shared across replicas.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sensor-service/internal/apperr"

	"github.com/redis/go-redis/v9"
)

type LimiterConfig struct {
	RPS   int
	Burst int
}

type RateLimiter struct {
	Redis  redis.Scripter
	Prefix string
	Config LimiterConfig
}

// KEYS[1] bucket key; ARGV max tokens, refill per second, now in ms, ttl in s.
// last only advances by whole refilled tokens so fractional credit survives.
var tokenBucket = redis.NewScript(`
local tokens_key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local bucket = redis.call('HMGET', tokens_key, 'tokens', 'last')
local tokens = tonumber(bucket[1]) or max_tokens
local last = tonumber(bucket[2]) or now
local delta = math.max(0, now - last) / 1000
local refill = math.floor(delta * refill_rate)
if refill > 0 then
  last = last + math.floor(refill * 1000 / refill_rate)
end
tokens = tokens + refill
if tokens >= max_tokens then
  tokens = max_tokens
  last = now
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HMSET', tokens_key, 'tokens', tokens, 'last', last)
redis.call('EXPIRE', tokens_key, ARGV[4])
return allowed
`)

// New returns nil when client is nil; a nil limiter lets every request pass.
func New(client redis.Scripter, prefix string, cfg LimiterConfig) *RateLimiter {
	if client == nil {
		return nil
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RPS
	}
	return &RateLimiter{Redis: client, Prefix: prefix, Config: cfg}
}

func (rl *RateLimiter) Middleware(keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.Prefix + ":" + keyFunc(r)
			allowed, err := rl.Allow(r.Context(), key)
			if err != nil {
				// Redis outages must not stop ingestion.
				slog.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, apperr.RateLimited("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allow takes one token from the bucket at key.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return rl.allowAt(ctx, key, time.Now())
}

func (rl *RateLimiter) allowAt(ctx context.Context, key string, now time.Time) (bool, error) {
	ttl := rl.Config.Burst/rl.Config.RPS + 2
	res, err := tokenBucket.Run(ctx, rl.Redis, []string{key}, rl.Config.Burst, rl.Config.RPS, now.UnixMilli(), ttl).Result()
	if err != nil {
		return false, err
	}
	var allowed int64
	switch v := res.(type) {
	case int64:
		allowed = v
	case string:
		allowed, _ = strconv.ParseInt(v, 10, 64)
	}
	slog.Debug("token bucket", "key", key, "allowed", allowed, "max", rl.Config.Burst, "rps", rl.Config.RPS)
	return allowed == 1, nil
}

func writeJSONError(w http.ResponseWriter, e *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.Status())
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": e.Message, "code": e.Kind.String()})
}

// KeyByIP keys on the client address, stripping the port when present.
func KeyByIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if ip, _, err := net.SplitHostPort(addr); err == nil {
		return ip
	}
	return addr
}
