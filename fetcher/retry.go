package fetcher

import (
	"context"
	"errors"
	"time"
)

type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// AttemptTimeout bounds a single attempt when set.
	AttemptTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// isRetryable reports whether err is worth another attempt. Only the caller
// giving up is final; a single attempt running out of time is not.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Permanent {
		return false
	}
	return true
}

// retry runs fn until it succeeds, fails permanently, or the retries are used
// up. The returned error is the last one seen, wrapped in a FetchError that
// records the number of attempts.
func retry(ctx context.Context, cfg RetryConfig, url string, fn func(context.Context) error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	attempts := 0
	for n := 0; n <= cfg.MaxRetries; n++ {
		attempts++
		err := attempt(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(ctx, err) || n == cfg.MaxRetries {
			break
		}

		if backoff > 0 {
			if err := sleepContext(ctx, backoff); err != nil {
				return &FetchError{URL: url, Attempts: attempts, Err: err}
			}
		}
		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	var fe *FetchError
	if errors.As(lastErr, &fe) {
		fe.Attempts = attempts
		if fe.URL == "" {
			fe.URL = url
		}
		return fe
	}
	return &FetchError{URL: url, Attempts: attempts, Err: lastErr}
}

func attempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
