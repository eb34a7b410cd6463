// Package retry runs fallible operations with bounded exponential backoff.
//
// Policies are plain values: each call site picks its own MaxRetries and shares
// nothing with other callers, so a Policy can be reused from any goroutine.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	juju "github.com/juju/retry"
)

// Policy bounds how often and how slowly an operation is retried
type Policy struct {
	MaxRetries int                             // Additional attempts after the first call
	Backoff    func(attempt int) time.Duration // Delay before retry number attempt (1-based)
	Clock      clock.Clock                     // Defaults to the wall clock
}

// OnRetry is invoked before every backoff sleep
type OnRetry func(attempt int, delay time.Duration, err error)

// NonRetryableError wraps errors that must not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable marks err so that Execute returns it immediately
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Exponential returns a backoff doubling from initial and capped at max
func Exponential(initial, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := initial
		for i := 1; i < attempt; i++ {
			delay *= 2
			if max > 0 && delay >= max {
				return max
			}
		}
		if max > 0 && delay > max {
			return max
		}
		return delay
	}
}

// Constant returns a backoff that always waits d
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// WithMaxRetries returns a copy of the policy with a different retry ceiling
func (p Policy) WithMaxRetries(n int) Policy {
	p.MaxRetries = n
	return p
}

// Execute calls fn until it succeeds, returns a non-retryable error, or has been
// retried MaxRetries times. On exhaustion the last error is returned unchanged.
func Execute[T any](ctx context.Context, p Policy, onRetry OnRetry, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var (
		result   T
		lastErr  error
		attempts int
	)
	err := juju.Call(juju.CallArgs{
		Func: func() error {
			attempts++
			var err error
			result, err = fn(ctx)
			lastErr = err
			return err
		},
		IsFatalError: IsNonRetryable,
		NotifyFunc: func(err error, attempt int) {
			if onRetry != nil && attempt <= maxRetries {
				onRetry(attempt, p.delay(attempt), err)
			}
		},
		Attempts: maxRetries + 1,
		// Call rejects a zero Delay; BackoffFunc replaces it before every wait.
		Delay: time.Nanosecond,
		BackoffFunc: func(_ time.Duration, attempt int) time.Duration {
			return p.delay(attempt)
		},
		Clock: p.clock(),
		Stop:  ctx.Done(),
	})
	switch {
	case err == nil:
		return result, nil
	case juju.IsRetryStopped(err):
		return zero, fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempts+1, ctx.Err())
	case lastErr == nil:
		return zero, fmt.Errorf("retry: %w", err)
	default:
		return zero, lastErr
	}
}

// Do is Execute for operations without a result
func Do(ctx context.Context, p Policy, onRetry OnRetry, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, p, onRetry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p Policy) clock() clock.Clock {
	if p.Clock == nil {
		return clock.WallClock
	}
	return p.Clock
}
