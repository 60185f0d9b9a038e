package fetcher

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	MetadataBackoff = 1 * time.Second
	ListingBackoff  = 10 * time.Second
)

// RateLimiter is a token bucket shared by every request a source makes,
// whichever channel it is for.
type RateLimiter struct {
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter allows burst requests at once, refilled at burst per period.
// The default for remote sources is 10 requests per minute.
func NewRateLimiter(burst int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(period/time.Duration(burst)), burst),
		sleep:   sleepContext,
	}
}

// Unlimited returns a limiter that never makes a caller wait.
func Unlimited() *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Inf, 0),
		sleep:   sleepContext,
	}
}

// Check takes a token if one is available.
func (rl *RateLimiter) Check() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}

// Wait returns immediately when the budget allows a request. Otherwise it
// sleeps for the fixed backoff and then lets the request through. It only
// fails when ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, backoff time.Duration) error {
	if rl.Check() {
		return nil
	}
	return rl.sleep(ctx, backoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
