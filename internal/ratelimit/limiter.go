// Package ratelimit implements fixed-window rate limiting on shared redis
// counters, so limits hold across every node in the fleet.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"parley/internal/cache"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Bucket names.
const (
	BucketAPI            = "api"
	BucketAuth           = "auth"
	BucketMessage        = "message"
	BucketReaction       = "reaction"
	BucketUpload         = "upload"
	BucketSearch         = "search"
	BucketContactRequest = "contact-request"
)

// Rule is one bucket's limit over a fixed window. FailClosed buckets reject
// when redis is unreachable; the rest let traffic through.
type Rule struct {
	Limit      int
	Window     time.Duration
	FailClosed bool
}

// Rules maps each bucket to its rule. Auth fails closed: an unreachable
// counter must not open the door to credential stuffing.
var Rules = map[string]Rule{
	BucketAPI:            {Limit: 100, Window: time.Minute},
	BucketAuth:           {Limit: 5, Window: 15 * time.Minute, FailClosed: true},
	BucketMessage:        {Limit: 10, Window: time.Second},
	BucketReaction:       {Limit: 20, Window: time.Second},
	BucketUpload:         {Limit: 10, Window: time.Minute},
	BucketSearch:         {Limit: 30, Window: time.Minute},
	BucketContactRequest: {Limit: 50, Window: 24 * time.Hour},
}

// Limiter checks fixed-window counters in redis.
type Limiter struct {
	redis *redis.Client
	rules map[string]Rule
}

// NewLimiter creates a limiter with the standard rules.
func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{redis: rdb, rules: Rules}
}

// Allow consumes one unit from the bucket's window for the given key
// (an IP or a user ID, depending on the bucket). When the bucket is
// exhausted it returns false and how long, in milliseconds, the caller
// should wait before retrying.
func (l *Limiter) Allow(ctx context.Context, bucket, key string) (bool, int64) {
	rule, ok := l.rules[bucket]
	if !ok {
		return true, 0
	}
	if l.redis == nil {
		return l.failState(bucket, rule, nil)
	}

	redisKey := cache.RateLimitKey(bucket, key)

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return l.failState(bucket, rule, err)
	}
	if count == 1 {
		// First hit anchors the window; later hits must not slide it.
		l.redis.PExpire(ctx, redisKey, rule.Window)
	}
	if count <= int64(rule.Limit) {
		return true, 0
	}

	observability.RateLimitRejections.WithLabelValues(bucket).Inc()
	retryAfter := rule.Window.Milliseconds()
	if ttl, err := l.redis.PTTL(ctx, redisKey).Result(); err == nil && ttl > 0 {
		retryAfter = ttl.Milliseconds()
	}
	return false, retryAfter
}

// Check wraps Allow into an error suitable for handlers: nil when allowed,
// a typed rate-limit error with the retry hint otherwise.
func (l *Limiter) Check(ctx context.Context, bucket, key string) error {
	allowed, retryAfter := l.Allow(ctx, bucket, key)
	if allowed {
		return nil
	}
	return models.NewRateLimitedError(retryAfter)
}

// Refund returns one unit to the bucket's current window. Buckets that only
// count failures (auth) call this once the attempt succeeds.
func (l *Limiter) Refund(ctx context.Context, bucket, key string) {
	if l.redis == nil {
		return
	}
	if _, ok := l.rules[bucket]; !ok {
		return
	}
	redisKey := cache.RateLimitKey(bucket, key)
	count, err := l.redis.Decr(ctx, redisKey).Result()
	if err != nil {
		return
	}
	if count < 0 {
		// The window expired between Allow and Refund; drop the stray key.
		_ = l.redis.Del(ctx, redisKey).Err()
	}
}

func (l *Limiter) failState(bucket string, rule Rule, err error) (bool, int64) {
	if err != nil {
		middleware.Logger.Warn("Rate limiter redis failure",
			slog.String("bucket", bucket),
			slog.String("error", err.Error()))
	}
	if rule.FailClosed {
		return false, rule.Window.Milliseconds()
	}
	return true, 0
}
