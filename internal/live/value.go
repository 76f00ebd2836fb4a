// Package live provides the small set of stream primitives the notes
// controller is built from: a latest-value cell with fan-out, a combinator
// over two live inputs, and a query that re-runs on store changes.
//
// All channels returned here are conflating. A subscriber that falls behind
// skips intermediate values and always receives the newest one, so a slow
// reader never blocks a writer and never observes a stale value last.
package live

import (
	"context"
	"sync"
)

// Value is a mutable cell holding the latest value of T. Every Set is
// delivered to all current subscribers.
type Value[T any] struct {
	mu      sync.Mutex
	v       T
	set     bool
	ready   chan struct{}
	subs    map[chan T]struct{}
	version uint64
}

// NewValue returns a Value that starts out holding initial.
func NewValue[T any](initial T) *Value[T] {
	ready := make(chan struct{})
	close(ready)
	return &Value[T]{v: initial, set: true, ready: ready, subs: make(map[chan T]struct{})}
}

// NewPending returns a Value with no value yet. Subscribers receive nothing
// until the first Set, and Wait blocks until then.
func NewPending[T any]() *Value[T] {
	return &Value[T]{ready: make(chan struct{}), subs: make(map[chan T]struct{})}
}

// Get returns the current value and whether one has been set.
func (c *Value[T]) Get() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v, c.set
}

// Version returns the number of Set calls applied so far.
func (c *Value[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Wait blocks until a value is available or ctx is done.
func (c *Value[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.ready:
		v, _ := c.Get()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Set replaces the value and notifies subscribers.
func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(v)
}

// Update applies fn to the current value under the cell's lock and stores the
// result. It returns the new value.
func (c *Value[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := fn(c.v)
	c.setLocked(v)
	return v
}

func (c *Value[T]) setLocked(v T) {
	c.v = v
	c.version++
	if !c.set {
		c.set = true
		close(c.ready)
	}
	for ch := range c.subs {
		replace(ch, v)
	}
}

// Subscribe returns a channel that yields the current value (if any) and then
// every later one. The channel is closed when ctx is done.
func (c *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	c.mu.Lock()
	if c.set {
		ch <- c.v
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

// Subscribers returns the number of active subscriptions.
func (c *Value[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// replace puts v into a one-slot channel, discarding a pending value the
// reader has not taken yet. Callers must be the channel's only sender.
func replace[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
