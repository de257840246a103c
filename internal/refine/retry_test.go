package refine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        time.Second,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), "test", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("429 rate limit exceeded")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("503 service unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls) // 1 initial + 3 retries
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestRetryFatalNotRetried(t *testing.T) {
	calls := 0
	fatal := Fatal(fmt.Errorf("corrected output is not valid JSON"))
	err := retryWithBackoff(context.Background(), fastRetryConfig(), "test", func(ctx context.Context) error {
		calls++
		return fatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsFatal(err))
}

func TestRetryUnknownErrorNotRetried(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("something unclassifiable went wrong")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryWithBackoff(ctx, fastRetryConfig(), "test", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("connection reset by peer")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 too many requests"), true},
		{"server error", errors.New("500 internal server error"), true},
		{"bad gateway", errors.New("bad gateway"), true},
		{"connection refused", errors.New("connection refused"), true},
		{"timeout", errors.New("request timeout"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"auth failure", errors.New("401 unauthorized"), false},
		{"not found", errors.New("404 not found"), false},
		{"fatal-marked timeout", Fatal(errors.New("timeout")), false},
		{"unknown", errors.New("weird failure"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableError(tt.err))
		})
	}
}

func TestBackoffFor(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
	}
	assert.Equal(t, time.Second, cfg.backoffFor(0))
	assert.Equal(t, 2*time.Second, cfg.backoffFor(1))
	assert.Equal(t, 4*time.Second, cfg.backoffFor(2))
	assert.Equal(t, 8*time.Second, cfg.backoffFor(3))
	// Capped at MaxBackoff
	assert.Equal(t, 10*time.Second, cfg.backoffFor(4))
	assert.Equal(t, 10*time.Second, cfg.backoffFor(20))
}

func TestFatalNil(t *testing.T) {
	assert.Nil(t, Fatal(nil))
	assert.False(t, IsFatal(nil))
}
