package genai

import (
	"context"
	"time"

	"github.com/techpress/core/internal/config"
)

// Sleeper waits for d or until ctx is done. Injectable for tests.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy bounds the rate-limit backoff loop.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
	Sleep       Sleeper
}

// PolicyFromConfig builds a RetryPolicy from config values.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{BaseDelay: cfg.BaseDelay(), MaxAttempts: cfg.MaxAttempts}
}

// WithRetry runs call, retrying only rate-limited results with exponential
// backoff: baseDelay * 2^attempt before each retry, up to MaxAttempts retries.
// Any other result kind is returned immediately. On exhaustion the last
// rate-limited result is returned so callers can surface a distinct message.
func WithRetry(ctx context.Context, policy RetryPolicy, call func(context.Context) CallResult) CallResult {
	sleep := policy.Sleep
	if sleep == nil {
		sleep = defaultSleep
	}

	var last CallResult
	for attempt := 0; ; attempt++ {
		last = call(ctx)
		if last.Kind != CallRateLimited {
			return last
		}
		if attempt >= policy.MaxAttempts {
			return last
		}
		delay := policy.BaseDelay << attempt
		if err := sleep(ctx, delay); err != nil {
			return canceled("")
		}
	}
}
