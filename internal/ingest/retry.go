package ingest

import (
	"context"
	"errors"
	"time"
)

// FixedRetryPolicy resubmits retryable failures a bounded number of times
// with a constant delay between attempts. It governs whole-target retries
// at the queue layer and composes with the fetch client's own per-request
// retry bound.
type FixedRetryPolicy struct {
	maxAttempts int
	delay       time.Duration
}

// NewFixedRetryPolicy builds a policy with the given bounds. A non-positive
// attempt count falls back to 3 and a negative delay to 60s, matching the
// queue defaults. A zero delay resubmits immediately.
func NewFixedRetryPolicy(maxAttempts int, delay time.Duration) *FixedRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if delay < 0 {
		delay = 60 * time.Second
	}
	return &FixedRetryPolicy{maxAttempts: maxAttempts, delay: delay}
}

// ShouldRetry decides whether the target gets another end-to-end attempt.
func (p *FixedRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsRetryable(err)
}

// Backoff returns the wait duration before the next attempt.
func (p *FixedRetryPolicy) Backoff(_ int) time.Duration {
	return p.delay
}
