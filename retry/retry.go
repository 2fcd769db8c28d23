// Package retry wraps single storage operations in a capped exponential
// backoff loop with non-retryable signaling.
//
// Retrying is opt-in per call site: nothing in the storage backends retries
// implicitly except the per-object transfers inside directory operations. A
// retried operation is not guaranteed idempotent; callers rely on remote
// overwrite-by-default semantics.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stordock/stordock/interfaces"
)

const (
	// DefaultMaxAttempts bounds the total invocations of an operation,
	// the first call included.
	DefaultMaxAttempts = 5

	// DefaultInitialBackoff is the sleep before the first retry; each
	// subsequent sleep doubles.
	DefaultInitialBackoff = 1 * time.Second

	// DefaultMaxBackoff caps the doubling.
	DefaultMaxBackoff = 30 * time.Second
)

// Executor retries failed operations with deterministic doubling backoff. The
// zero value uses the package defaults; fields are read at each Attempt call,
// so a configured Executor can be shared.
type Executor struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Log            *slog.Logger

	// Timer substitutes the sleep between attempts in tests.
	Timer backoff.Timer
}

// Default is the executor behind the package-level Attempt functions.
var Default = &Executor{}

// Attempt invokes op, retrying failures with doubling backoff until op
// succeeds or the attempt ceiling is reached. A failure for which
// interfaces.DoNotRetry reports true is returned immediately without
// retrying. The error of the final attempt is returned unmodified in either
// case, so the root cause is never hidden behind a wrapper.
func (e *Executor) Attempt(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.initialBackoff()
	policy.MaxInterval = e.maxBackoff()
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err != nil && interfaces.DoNotRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		e.logger().Warn("Retrying storage operation",
			"err", err,
			slog.Duration("backoff", wait))
	}

	bounded := backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(e.maxAttempts()-1)), ctx)
	return backoff.RetryNotifyWithTimer(wrapped, bounded, notify, e.Timer)
}

// Attempt invokes op through the default executor.
func Attempt(ctx context.Context, op func() error) error {
	return Default.Attempt(ctx, op)
}

// AttemptValue invokes op through the default executor and returns its value
// alongside the final error.
func AttemptValue[T any](ctx context.Context, op func() (T, error)) (T, error) {
	var value T
	err := Default.Attempt(ctx, func() error {
		var err error
		value, err = op()
		return err
	})
	return value, err
}

func (e *Executor) maxAttempts() int {
	if e.MaxAttempts > 0 {
		return e.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (e *Executor) initialBackoff() time.Duration {
	if e.InitialBackoff > 0 {
		return e.InitialBackoff
	}
	return DefaultInitialBackoff
}

func (e *Executor) maxBackoff() time.Duration {
	if e.MaxBackoff > 0 {
		return e.MaxBackoff
	}
	return DefaultMaxBackoff
}

func (e *Executor) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}
