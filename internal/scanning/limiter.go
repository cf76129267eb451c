package scanning

import (
	"context"
	"fmt"
	"sync"
)

// Limiter bounds how many port probes may be in flight at once.
type Limiter interface {
	// Acquire blocks until a slot is free for key or ctx is done.
	Acquire(ctx context.Context, key string) error

	// Release frees the slot held by key. Releasing an unknown key is a no-op.
	Release(key string)

	// InFlight returns the number of currently held slots.
	InFlight() int

	// Peak returns the highest number of slots held at the same time.
	Peak() int

	// Capacity returns the maximum number of slots.
	Capacity() int

	// Close rejects further acquisitions.
	Close() error
}

// FixedLimiter implements Limiter with a fixed number of slots.
type FixedLimiter struct {
	capacity  int
	semaphore chan struct{}
	active    map[string]struct{}
	peak      int
	mu        sync.Mutex
	closed    bool
}

// NewFixedLimiter creates a limiter with the given capacity. Capacities below
// one are raised to one.
func NewFixedLimiter(capacity int) *FixedLimiter {
	if capacity <= 0 {
		capacity = 1
	}

	return &FixedLimiter{
		capacity:  capacity,
		semaphore: make(chan struct{}, capacity),
		active:    make(map[string]struct{}),
	}
}

// Acquire attempts to acquire a slot for the given key.
func (l *FixedLimiter) Acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("limiter is closed")
	}
	if _, held := l.active[key]; held {
		l.mu.Unlock()
		return fmt.Errorf("slot %q already held", key)
	}
	l.mu.Unlock()

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	l.active[key] = struct{}{}
	if len(l.active) > l.peak {
		l.peak = len(l.active)
	}
	l.mu.Unlock()
	return nil
}

// Release releases the slot for the given key.
func (l *FixedLimiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[key]; !exists {
		return
	}
	delete(l.active, key)
	<-l.semaphore
}

// InFlight returns the current number of held slots.
func (l *FixedLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// Peak returns the highest number of simultaneously held slots.
func (l *FixedLimiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

// Capacity returns the number of slots.
func (l *FixedLimiter) Capacity() int {
	return l.capacity
}

// Close rejects further acquisitions. Held slots stay valid until released.
func (l *FixedLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
