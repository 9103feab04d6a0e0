package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/provider"
)

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithBackoff_SucceedsAfterTransients(t *testing.T) {
	transient := provider.Errorf(provider.Transient, "create", "net1", "throttled")

	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		if attempts < 3 {
			return transient
		}
		return nil
	}, provider.IsTransient, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_PermanentFailsImmediately(t *testing.T) {
	permanent := provider.Errorf(provider.Permanent, "create", "net1", "denied")

	attempts := 0
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return permanent
	}, provider.IsTransient, nil)

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExhaustsBudget(t *testing.T) {
	transient := provider.Errorf(provider.Transient, "create", "net1", "throttled")

	attempts := 0
	var notified []int
	err := RetryWithBackoff(context.Background(), fastPolicy(), func() error {
		attempts++
		return transient
	}, provider.IsTransient, func(attempt int, err error) {
		notified = append(notified, attempt)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Contains(t, err.Error(), "max retries")
	assert.Equal(t, 4, attempts) // initial call plus 3 retries
	assert.Equal(t, []int{1, 2, 3}, notified)
}

func TestRetryWithBackoff_CancelledDuringSleep(t *testing.T) {
	transient := provider.Errorf(provider.Transient, "create", "net1", "throttled")
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := RetryWithBackoff(ctx, &RetryPolicy{MaxRetries: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}, func() error {
		attempts++
		cancel()
		return transient
	}, provider.IsTransient, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoffDelay_Bounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(attempt, time.Second, 30*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestRetryWithBackoff_NilPolicyUsesDefault(t *testing.T) {
	err := RetryWithBackoff(context.Background(), nil, func() error { return nil },
		func(error) bool { return false }, nil)
	require.NoError(t, err)
}
