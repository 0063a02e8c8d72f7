package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/retry"
)

func TestDoRetriesRetryableErrors(t *testing.T) {
	policy := retry.Policy{MaxRetries: 3, BackoffFactor: 0}
	calls := 0
	err := policy.Do(context.Background(), "test op", func() error {
		calls++
		if calls < 3 {
			return exception.NewPipelineError("test", "transient", nil, true)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	policy := retry.Policy{MaxRetries: 5, BackoffFactor: 0}
	calls := 0
	permanent := errors.New("bad request")
	err := policy.Do(context.Background(), "test op", func() error {
		calls++
		return permanent
	})
	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	policy := retry.Policy{MaxRetries: 2, BackoffFactor: 0}
	calls := 0
	err := policy.Do(context.Background(), "test op", func() error {
		calls++
		return exception.NewPipelineError("test", "still failing", nil, true)
	})
	require.Error(t, err)
	// Initial attempt plus two retries.
	assert.Equal(t, 3, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	policy := retry.Policy{MaxRetries: 10, BackoffFactor: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := policy.Do(ctx, "test op", func() error {
		return exception.NewPipelineError("test", "transient", nil, true)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffIntervalDoubles(t *testing.T) {
	policy := retry.Policy{MaxRetries: 5, BackoffFactor: 0.2}
	assert.Equal(t, 200*time.Millisecond, policy.BackoffInterval(1))
	assert.Equal(t, 400*time.Millisecond, policy.BackoffInterval(2))
	assert.Equal(t, 800*time.Millisecond, policy.BackoffInterval(3))
}
