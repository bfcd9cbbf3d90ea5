package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTransferRateLimiter_BlocksAfterBurst(t *testing.T) {
	limiter := NewLocalTransferRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, "acc-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := limiter.Allow(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	other, _, _ := limiter.Allow(ctx, "acc-2")
	assert.True(t, other, "subjects are limited independently")
}

func TestLocalTransferRateLimiter_DisabledWhenLimitIsZero(t *testing.T) {
	limiter := NewLocalTransferRateLimiter(0, time.Minute)

	for i := 0; i < 10; i++ {
		allowed, _, err := limiter.Allow(context.Background(), "acc-1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestRedisTransferRateLimiter_NilClientAllows(t *testing.T) {
	limiter := NewRedisTransferRateLimiter(nil, "", 1, time.Minute)

	allowed, _, err := limiter.Allow(context.Background(), "acc-1")

	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, "ledger:rate_limit", limiter.prefix)
}
