// Package killswitch provides the cooperative stop token checked by the
// orchestrator between stages, and the owned goroutines that trip it: a line
// reader (an operator typing STOP) and an etcd key watcher.
//
// A tripped switch stays tripped. A stage already running is not interrupted;
// the next stage simply never starts.
package killswitch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrKilled is the cause reported once the switch has been tripped.
var ErrKilled = errors.New("killswitch: stopped")

// Switch is a one-way stop flag safe for concurrent use.
type Switch struct {
	tripped atomic.Bool
	once    sync.Once
	done    chan struct{}

	mu     sync.Mutex
	reason string
	at     time.Time
}

// New returns an untripped switch.
func New() *Switch {
	return &Switch{done: make(chan struct{})}
}

// Trip stops the switch and reports whether this call was the one that did.
func (s *Switch) Trip(reason string) bool {
	first := false
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.at = time.Now().UTC()
		s.mu.Unlock()
		s.tripped.Store(true)
		close(s.done)
		first = true
	})
	return first
}

// Active reports whether the switch has been tripped.
func (s *Switch) Active() bool {
	return s.tripped.Load()
}

// Done is closed when the switch trips.
func (s *Switch) Done() <-chan struct{} {
	return s.done
}

// Reason returns the reason given to the first Trip.
func (s *Switch) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// TrippedAt returns when the switch tripped, or the zero time.
func (s *Switch) TrippedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.at
}

// Err returns nil until tripped, then an error wrapping ErrKilled.
func (s *Switch) Err() error {
	if !s.Active() {
		return nil
	}
	if r := s.Reason(); r != "" {
		return fmt.Errorf("%w: %s", ErrKilled, r)
	}
	return ErrKilled
}

// Context derives a context that is cancelled with Err as its cause when the
// switch trips. Call cancel to release it.
func (s *Switch) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-s.done:
			cancel(s.Err())
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}
