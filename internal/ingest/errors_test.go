package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskErrorClassification(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")

	retryable := Retryable(base)
	require.True(t, IsRetryable(retryable))
	require.ErrorIs(t, retryable, base)
	require.Contains(t, retryable.Error(), "retryable")

	fatal := Fatal(base)
	require.False(t, IsRetryable(fatal))
	require.ErrorIs(t, fatal, base)
	require.Contains(t, fatal.Error(), "fatal")

	wrapped := fmt.Errorf("outer: %w", Fatal(base))
	require.False(t, IsRetryable(wrapped))
}

func TestTaskErrorNilWraps(t *testing.T) {
	t.Parallel()

	require.NoError(t, Retryable(nil))
	require.NoError(t, Fatal(nil))
}

func TestIsRetryableDefaultsUnclassified(t *testing.T) {
	t.Parallel()

	require.True(t, IsRetryable(errors.New("plain")))
	require.False(t, IsRetryable(nil))
}

func TestFixedRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	policy := NewFixedRetryPolicy(3, time.Second)
	err := Retryable(errors.New("transient"))

	require.True(t, policy.ShouldRetry(err, 1))
	require.True(t, policy.ShouldRetry(err, 2))
	require.False(t, policy.ShouldRetry(err, 3))

	require.False(t, policy.ShouldRetry(nil, 1))
	require.False(t, policy.ShouldRetry(Fatal(errors.New("terminal")), 1))
	require.False(t, policy.ShouldRetry(context.Canceled, 1))
	require.False(t, policy.ShouldRetry(context.DeadlineExceeded, 1))
}

func TestFixedRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	policy := NewFixedRetryPolicy(0, -1)
	require.Equal(t, 60*time.Second, policy.Backoff(1))
	require.True(t, policy.ShouldRetry(errors.New("x"), 2))
	require.False(t, policy.ShouldRetry(errors.New("x"), 3))

	immediate := NewFixedRetryPolicy(3, 0)
	require.Equal(t, time.Duration(0), immediate.Backoff(1))
}
