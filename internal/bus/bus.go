// Package bus provides the bounded broadcast channels that connect the
// pipeline stages. A Bus fans every published value out to all subscribers;
// each subscriber owns a fixed-capacity channel, and a publish blocks
// (backpressure) until every subscriber has buffer room or the context is
// cancelled. Slow consumers therefore slow the producer instead of silently
// losing events.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/alphasquare/triarb/internal/domain"
)

// Bus is a bounded fan-out broadcast channel for values of type T.
type Bus[T any] struct {
	name     string
	capacity int

	// mu is held for reading during delivery and for writing by
	// Subscribe/Close, so a channel is never closed mid-send.
	mu     sync.RWMutex
	subs   []chan T
	closed bool
}

// New creates a Bus whose subscriber channels hold up to capacity values.
// The name appears in errors and counter output.
func New[T any](name string, capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus[T]{name: name, capacity: capacity}
}

// Name returns the bus name.
func (b *Bus[T]) Name() string { return b.name }

// Subscribe registers a new consumer and returns its receive channel. The
// channel is closed when the bus is closed. Subscribing to a closed bus
// returns an already-closed channel.
func (b *Bus[T]) Subscribe() <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, b.capacity)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers v to every subscriber, blocking per subscriber until there
// is buffer room. It returns domain.ErrBusClosed after Close, and the context
// error if ctx is cancelled mid-delivery. Publishing with no subscribers is
// an error: in this pipeline every stage has a downstream, so a missing
// receiver means the process is already broken.
func (b *Bus[T]) Publish(ctx context.Context, v T) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus %s: publish: %w", b.name, domain.ErrBusClosed)
	}
	if len(b.subs) == 0 {
		return fmt.Errorf("bus %s: publish: no subscribers", b.name)
	}
	for _, ch := range b.subs {
		select {
		case ch <- v:
		case <-ctx.Done():
			return fmt.Errorf("bus %s: publish: %w", b.name, ctx.Err())
		}
	}
	return nil
}

// Close closes every subscriber channel. Further publishes fail; Close is
// idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
