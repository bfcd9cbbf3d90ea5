package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// TransferRateLimiter bounds how many transfers a subject may submit per window.
type TransferRateLimiter interface {
	Allow(ctx context.Context, subject string) (allowed bool, retryAfter time.Duration, err error)
}

var transferRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisTransferRateLimiter implements a distributed fixed-window limiter using Redis.
type RedisTransferRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisTransferRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisTransferRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "ledger:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisTransferRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limit,
		window: window,
	}
}

func (r *RedisTransferRateLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	count, retryAfterSeconds, err := r.consume(ctx, "transfer", subject)
	if err != nil {
		return true, 0, err
	}
	if count > r.limit {
		return false, time.Duration(retryAfterSeconds) * time.Second, nil
	}
	return true, 0, nil
}

func (r *RedisTransferRateLimiter) consume(ctx context.Context, scope, subject string) (count int, retryAfterSeconds int, err error) {
	if r == nil || r.client == nil || r.limit <= 0 || r.window <= 0 {
		return 0, 0, nil
	}

	normalizedSubject := strings.TrimSpace(subject)
	if normalizedSubject == "" {
		return 0, 0, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, normalizedSubject)
	rawResult, err := transferRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}

	currentCount, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return int(currentCount), 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return int(currentCount), retryAfter, nil
}

// LocalTransferRateLimiter is an in-process token bucket per subject, used when
// Redis is not configured. Idle buckets expire from the cache.
type LocalTransferRateLimiter struct {
	limit   int
	window  time.Duration
	buckets *cache.Cache
}

func NewLocalTransferRateLimiter(limit int, window time.Duration) *LocalTransferRateLimiter {
	return &LocalTransferRateLimiter{
		limit:   limit,
		window:  window,
		buckets: cache.New(10*window, 20*window),
	}
}

func (l *LocalTransferRateLimiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	if l.limit <= 0 || l.window <= 0 {
		return true, 0, nil
	}

	limiter := l.bucket(subject)
	reservation := limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

func (l *LocalTransferRateLimiter) bucket(subject string) *rate.Limiter {
	if existing, ok := l.buckets.Get(subject); ok {
		l.buckets.SetDefault(subject, existing)
		return existing.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
	if err := l.buckets.Add(subject, fresh, cache.DefaultExpiration); err != nil {
		if existing, ok := l.buckets.Get(subject); ok {
			return existing.(*rate.Limiter)
		}
	}
	return fresh
}
