// Package retry implements bounded retries with exponential backoff for
// calls to external collaborators.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy controls retry behavior.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

// Classify reports whether an error is worth retrying.
type Classify func(err error) bool

// Do runs op until it succeeds, the error is classified permanent, the
// attempt budget is exhausted, or ctx is cancelled.
func Do[T any](ctx context.Context, p Policy, retryable Classify, op func() (T, error)) (T, error) {
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		var zero T
		if !retryable(err) {
			return zero, &PermanentError{Err: err}
		}
		if attempt == p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

// DoVoid is Do for operations without a return value.
func DoVoid(ctx context.Context, p Policy, retryable Classify, op func() error) error {
	_, err := Do(ctx, p, retryable, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
