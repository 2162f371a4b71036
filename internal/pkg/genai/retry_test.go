package genai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleeper(delays *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestWithRetryBacksOffExponentially(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		BaseDelay:   100 * time.Millisecond,
		MaxAttempts: 3,
		Sleep:       recordingSleeper(&delays),
	}

	calls := 0
	res := WithRetry(context.Background(), policy, func(context.Context) CallResult {
		calls++
		if calls <= 2 {
			return rateLimited(errors.New("429"))
		}
		return ok("done")
	})

	require.Equal(t, CallOK, res.Kind)
	assert.Equal(t, "done", res.Text)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		BaseDelay:   50 * time.Millisecond,
		MaxAttempts: 3,
		Sleep:       recordingSleeper(&delays),
	}

	calls := 0
	res := WithRetry(context.Background(), policy, func(context.Context) CallResult {
		calls++
		return rateLimited(errors.New("429"))
	})

	// MaxAttempts retries on top of the initial call.
	assert.Equal(t, 4, calls)
	assert.Equal(t, CallRateLimited, res.Kind)
	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
	}, delays)
}

func TestWithRetryDoesNotRetryFailures(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{BaseDelay: time.Second, MaxAttempts: 3, Sleep: recordingSleeper(&delays)}

	calls := 0
	res := WithRetry(context.Background(), policy, func(context.Context) CallResult {
		calls++
		return failed(errors.New("boom"))
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, CallFailed, res.Kind)
	assert.Empty(t, delays)
}

func TestWithRetryDoesNotRetryCancellation(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxAttempts: 3}

	calls := 0
	res := WithRetry(context.Background(), policy, func(context.Context) CallResult {
		calls++
		return canceled("partial")
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, CallCanceled, res.Kind)
	assert.Equal(t, "partial", res.Text)
}

func TestWithRetryStopsWhenContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		BaseDelay:   time.Second,
		MaxAttempts: 3,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	calls := 0
	res := WithRetry(ctx, policy, func(context.Context) CallResult {
		calls++
		return rateLimited(errors.New("429"))
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, CallCanceled, res.Kind)
}
