// SPDX-License-Identifier: MIT

package mediabrowser

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry policy for transient failures. Auth, forbidden, not-found and
// validation errors are permanent; cancellation always propagates.
const defaultMaxAttempts = 3

// WithRetry runs op under exponential backoff with jitter. This is the
// policy-level retry, distinct from the interceptor-level 401 retry in the
// auth transport.
func WithRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return WithRetryAttempts(ctx, defaultMaxAttempts, op)
}

// WithRetryAttempts is WithRetry with an explicit attempt cap.
func WithRetryAttempts[T any](ctx context.Context, maxAttempts uint, op func() (T, error)) (T, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	expo.RandomizationFactor = 0.5 // jitter

	wrapped := func() (T, error) {
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxAttempts),
	)
}
