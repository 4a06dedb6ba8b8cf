// Package keylock provides non-blocking mutual exclusion keyed by string.
//
// Contention is reported to the caller instead of queued: a job that finds its
// key held fails fast with ErrBusy.
package keylock

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBusy indicates the key is already held.
var ErrBusy = errors.New("resource busy")

// BusyError identifies which key was held.
type BusyError struct {
	Key string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBusy, e.Key)
}

// Is reports ErrBusy equivalence so callers can use errors.Is(err, ErrBusy).
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// Set tracks held keys.
type Set struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// New creates an empty Set.
func New() *Set {
	return &Set{held: make(map[string]struct{})}
}

// Acquire takes key if it is free and returns a release function that is safe
// to call more than once. A held key returns a *BusyError.
func (s *Set) Acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.held[key]; ok {
		return nil, &BusyError{Key: key}
	}
	s.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, key)
			s.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently held.
func (s *Set) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[key]
	return ok
}
