package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/retry"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		Attempts:   attempts,
		Initial:    time.Millisecond,
		Multiplier: 2,
		Max:        4 * time.Millisecond,
	}
}

func TestBackoff(t *testing.T) {
	p := retry.Policy{Initial: time.Second, Multiplier: 2, Max: 5 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo(t *testing.T) {
	errFlaky := errors.New("flaky")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		n, err := retry.Do(context.Background(), fastPolicy(3), func(int) error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 3 {
			t.Errorf("attempts = %d, want 3", n)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		n, err := retry.Do(context.Background(), fastPolicy(3), func(int) error {
			return errFlaky
		})
		if !errors.Is(err, errFlaky) {
			t.Fatalf("err = %v, want wrapped flaky", err)
		}
		if n != 3 {
			t.Errorf("attempts = %d, want 3", n)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		errDenied := errors.New("denied")
		n, err := retry.Do(context.Background(), fastPolicy(5), func(int) error {
			return retry.Permanent(errDenied)
		})
		if !errors.Is(err, errDenied) {
			t.Fatalf("err = %v, want denied", err)
		}
		if n != 1 {
			t.Errorf("attempts = %d, want 1", n)
		}
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := retry.Policy{Attempts: 3, Initial: time.Hour, Multiplier: 1}

		n, err := retry.Do(ctx, p, func(int) error {
			cancel()
			return errFlaky
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if n != 1 {
			t.Errorf("attempts = %d, want 1", n)
		}
	})

	t.Run("zero attempts runs once", func(t *testing.T) {
		calls := 0
		retry.Do(context.Background(), retry.Policy{}, func(int) error {
			calls++
			return errFlaky
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
