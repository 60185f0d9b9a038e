package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBudget(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Check(), "request %d", i+1)
	}
	assert.False(t, rl.Check())
}

func TestRateLimiterWait(t *testing.T) {
	var slept []time.Duration
	rl := NewRateLimiter(2, time.Hour)
	rl.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx, MetadataBackoff))
	require.NoError(t, rl.Wait(ctx, MetadataBackoff))
	assert.Empty(t, slept)

	require.NoError(t, rl.Wait(ctx, MetadataBackoff))
	require.NoError(t, rl.Wait(ctx, ListingBackoff))
	assert.Equal(t, []time.Duration{MetadataBackoff, ListingBackoff}, slept)
}

func TestRateLimiterUnlimited(t *testing.T) {
	rl := Unlimited()
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Check())
	}

	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Check())
	assert.NoError(t, nilLimiter.Wait(context.Background(), time.Hour))
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
