// Package oneshot provides the single-firing, cancellable callback used for
// ring expiry, authentication outcomes and every other "fire later" hook.
package oneshot

import "sync"

type state int

const (
	statePending state = iota
	stateFired
	stateCancelled
)

// Callback delivers at most one value to fn. Once Cancel has been accepted,
// fn is never invoked.
type Callback[T any] struct {
	mu    sync.Mutex
	fn    func(T)
	state state
}

func NewCallback[T any](fn func(T)) *Callback[T] {
	return &Callback[T]{fn: fn}
}

// Fire invokes the callback with v and reports whether this call won.
// fn runs outside the internal lock.
func (c *Callback[T]) Fire(v T) bool {
	c.mu.Lock()
	if c.state != statePending {
		c.mu.Unlock()
		return false
	}
	c.state = stateFired
	fn := c.fn
	c.fn = nil
	c.mu.Unlock()

	if fn != nil {
		fn(v)
	}
	return true
}

// Cancel suppresses a future Fire. It reports false if the callback already
// fired or was already cancelled.
func (c *Callback[T]) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != statePending {
		return false
	}
	c.state = stateCancelled
	c.fn = nil
	return true
}

func (c *Callback[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == statePending
}

func (c *Callback[T]) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateFired
}
