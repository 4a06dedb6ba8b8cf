// Package retry runs operations with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy bounds an operation's attempts and the delay between them.
// The delay before attempt n+1 is Initial * Multiplier^n, capped at Max.
type Policy struct {
	Attempts   int
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// Default returns a three-attempt policy starting at one second.
func Default() Policy {
	return Policy{
		Attempts:   3,
		Initial:    time.Second,
		Multiplier: 2,
		Max:        30 * time.Second,
	}
}

// permanent wraps an error that must not be retried.
type permanent struct {
	err error
}

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as non-retryable. Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Backoff returns the delay that follows the given zero-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	backoff := float64(p.Initial) * math.Pow(mult, float64(attempt))
	if p.Max > 0 && backoff > float64(p.Max) {
		backoff = float64(p.Max)
	}

	return time.Duration(backoff)
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts are
// exhausted, or ctx is done. fn receives the zero-based attempt number.
// Do returns the number of attempts made alongside the final error.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) (int, error) {
	attempts := max(p.Attempts, 1)

	var lastErr error
	for attempt := range attempts {
		err := fn(attempt)
		if err == nil {
			return attempt + 1, nil
		}

		var perm *permanent
		if errors.As(err, &perm) {
			return attempt + 1, perm.err
		}
		if errors.Is(err, context.Canceled) {
			return attempt + 1, err
		}

		lastErr = err

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return attempt + 1, ctx.Err()
			case <-time.After(p.Backoff(attempt)):
			}
		}
	}

	return attempts, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
