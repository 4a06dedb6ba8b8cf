// Package cancel provides a cooperative cancellation token for long-running jobs.
//
// A Token is observed at safe boundaries (between files, between batches) and
// never interrupts work in progress. It is independent of context.Context so a
// cancelled job can still finish its current unit of work using the caller's context.
package cancel

import (
	"sync"
	"time"
)

// Token signals cancellation to a running job. The zero value is not usable; call New.
type Token struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	reason string
	at     time.Time
}

// New creates an untriggered Token.
func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel triggers the token. Only the first call records a reason; later calls
// are no-ops. It reports whether this call triggered the token.
func (t *Token) Cancel(reason string) bool {
	triggered := false
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.at = time.Now().UTC()
		t.mu.Unlock()
		close(t.done)
		triggered = true
	})
	return triggered
}

// Done returns a channel closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the token has been triggered.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to the first Cancel call and when it happened.
func (t *Token) Reason() (string, time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reason, t.at
}
