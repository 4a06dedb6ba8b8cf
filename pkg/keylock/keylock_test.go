package keylock_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/keylock"
)

func TestAcquire(t *testing.T) {
	set := keylock.New()

	release, err := set.Acquire("claims")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	t.Run("held key is busy", func(t *testing.T) {
		_, err := set.Acquire("claims")
		if !errors.Is(err, keylock.ErrBusy) {
			t.Fatalf("err = %v, want ErrBusy", err)
		}

		var busy *keylock.BusyError
		if !errors.As(err, &busy) || busy.Key != "claims" {
			t.Errorf("busy key = %v, want claims", busy)
		}
	})

	t.Run("other keys are independent", func(t *testing.T) {
		rel, err := set.Acquire("statements")
		if err != nil {
			t.Fatalf("acquire statements: %v", err)
		}
		rel()
	})

	t.Run("release frees key and is idempotent", func(t *testing.T) {
		release()
		release()

		if set.Held("claims") {
			t.Fatal("key still held after release")
		}

		rel, err := set.Acquire("claims")
		if err != nil {
			t.Fatalf("reacquire: %v", err)
		}
		rel()
	})
}

func TestAcquireExclusive(t *testing.T) {
	set := keylock.New()

	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range 32 {
		wg.Go(func() {
			<-start
			if _, err := set.Acquire("drugs"); err == nil {
				winners.Add(1)
			}
		})
	}

	close(start)
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("winners = %d, want 1", got)
	}
}
