// Package retry provides the bounded-retry combinator shared by the
// transport layer and the run coordinator.
package retry

import (
	"context"
	"errors"
	"time"
)

// Backoff maps a zero-based attempt number to the delay before the next try.
type Backoff func(attempt int) time.Duration

// Fixed waits the same delay between every attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential doubles the delay each attempt, capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base << uint(attempt)
		if d > max || d <= 0 {
			return max
		}
		return d
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do stops retrying and returns it immediately.
// Permission and not-found failures use this to propagate without retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn up to maxAttempts times, sleeping backoff(attempt) between
// tries. It returns nil on the first success, the unwrapped error for a
// permanent failure, and the last error once attempts are exhausted.
func Do(ctx context.Context, maxAttempts int, backoff Backoff, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}
