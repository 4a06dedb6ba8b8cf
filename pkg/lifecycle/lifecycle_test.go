package lifecycle_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aegisx-platform/eclaim-rep-download-sub002/pkg/lifecycle"
)

func TestReadiness(t *testing.T) {
	lc := lifecycle.New()
	if lc.Ready() {
		t.Error("ready before WaitForStartup")
	}

	var count atomic.Int32
	for range 3 {
		lc.OnStartup(func() { count.Add(1) })
	}

	lc.WaitForStartup()

	if !lc.Ready() {
		t.Error("not ready after WaitForStartup")
	}
	if got := count.Load(); got != 3 {
		t.Errorf("startup hooks: got %d, want 3", got)
	}
}

func TestShutdown(t *testing.T) {
	t.Run("runs hooks and cancels context", func(t *testing.T) {
		lc := lifecycle.New()

		var cleaned atomic.Bool
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			cleaned.Store(true)
		})

		lc.WaitForStartup()

		if err := lc.Shutdown(5 * time.Second); err != nil {
			t.Fatalf("shutdown failed: %v", err)
		}
		if !cleaned.Load() {
			t.Error("shutdown hook did not execute")
		}
		if lc.Context().Err() == nil {
			t.Error("context not cancelled after shutdown")
		}
	})

	t.Run("times out on slow hook", func(t *testing.T) {
		lc := lifecycle.New()
		lc.OnShutdown(func() {
			<-lc.Context().Done()
			time.Sleep(500 * time.Millisecond)
		})

		if err := lc.Shutdown(50 * time.Millisecond); err == nil {
			t.Error("expected timeout error")
		}
	})
}

func TestGoWaitsForBackgroundWork(t *testing.T) {
	lc := lifecycle.New()

	var finished atomic.Bool
	started := make(chan struct{})

	lc.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	<-started

	if err := lc.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !finished.Load() {
		t.Error("shutdown returned before background work finished")
	}
}
