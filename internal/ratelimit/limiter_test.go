package ratelimit

import (
	"context"
	"testing"
	"time"

	"parley/internal/cache"
	"parley/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLimiter(rdb), mr
}

func TestAllowUnderLimit(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < Rules[BucketMessage].Limit; i++ {
		allowed, _ := limiter.Allow(ctx, BucketMessage, "42")
		assert.True(t, allowed, "request %d should pass", i+1)
	}
}

func TestRejectOverLimit(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < Rules[BucketAuth].Limit; i++ {
		allowed, _ := limiter.Allow(ctx, BucketAuth, "10.0.0.1")
		require.True(t, allowed)
	}

	allowed, retryAfter := limiter.Allow(ctx, BucketAuth, "10.0.0.1")
	assert.False(t, allowed)
	assert.Positive(t, retryAfter)
	assert.LessOrEqual(t, retryAfter, Rules[BucketAuth].Window.Milliseconds())
}

func TestKeysAreIsolated(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < Rules[BucketAuth].Limit; i++ {
		limiter.Allow(ctx, BucketAuth, "10.0.0.1")
	}

	allowed, _ := limiter.Allow(ctx, BucketAuth, "10.0.0.2")
	assert.True(t, allowed, "a different caller has its own window")

	allowed, _ = limiter.Allow(ctx, BucketMessage, "10.0.0.1")
	assert.True(t, allowed, "a different bucket has its own window")
}

func TestWindowResets(t *testing.T) {
	limiter, mr := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < Rules[BucketMessage].Limit+1; i++ {
		limiter.Allow(ctx, BucketMessage, "7")
	}
	allowed, _ := limiter.Allow(ctx, BucketMessage, "7")
	require.False(t, allowed)

	mr.FastForward(Rules[BucketMessage].Window + time.Millisecond)

	allowed, _ = limiter.Allow(ctx, BucketMessage, "7")
	assert.True(t, allowed)
}

func TestRefundReturnsAUnit(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < Rules[BucketAuth].Limit; i++ {
		allowed, _ := limiter.Allow(ctx, BucketAuth, "3.3.3.3")
		require.True(t, allowed)
	}

	limiter.Refund(ctx, BucketAuth, "3.3.3.3")

	allowed, _ := limiter.Allow(ctx, BucketAuth, "3.3.3.3")
	assert.True(t, allowed, "the refunded unit is spendable again")

	allowed, _ = limiter.Allow(ctx, BucketAuth, "3.3.3.3")
	assert.False(t, allowed)
}

func TestRefundAfterWindowLeavesNoStrayKey(t *testing.T) {
	limiter, mr := setupLimiter(t)
	ctx := context.Background()

	allowed, _ := limiter.Allow(ctx, BucketAuth, "4.4.4.4")
	require.True(t, allowed)

	mr.FastForward(Rules[BucketAuth].Window + time.Millisecond)

	// The window lapsed between Allow and Refund; the decrement must not
	// leave a negative counter with no expiry behind.
	limiter.Refund(ctx, BucketAuth, "4.4.4.4")
	assert.False(t, mr.Exists(cache.RateLimitKey(BucketAuth, "4.4.4.4")))
}

func TestCheckReturnsTypedError(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < Rules[BucketAuth].Limit; i++ {
		require.NoError(t, limiter.Check(ctx, BucketAuth, "1.2.3.4"))
	}

	err := limiter.Check(ctx, BucketAuth, "1.2.3.4")
	require.Error(t, err)
	appErr := models.AsAppError(err)
	assert.Equal(t, models.KindRateLimited, appErr.Kind)
	assert.NotNil(t, appErr.Details)
}

func TestRedisDownFailsOpenExceptAuth(t *testing.T) {
	limiter, mr := setupLimiter(t)
	ctx := context.Background()
	mr.Close()

	allowed, _ := limiter.Allow(ctx, BucketMessage, "9")
	assert.True(t, allowed, "message bucket fails open")

	allowed, retryAfter := limiter.Allow(ctx, BucketAuth, "9")
	assert.False(t, allowed, "auth bucket fails closed")
	assert.Positive(t, retryAfter)
}

func TestUnknownBucketAlwaysAllows(t *testing.T) {
	limiter, _ := setupLimiter(t)

	allowed, _ := limiter.Allow(context.Background(), "no-such-bucket", "x")
	assert.True(t, allowed)
}
