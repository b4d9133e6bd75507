package oneshot

import (
	"sync"
	"time"

	"github.com/ent0n29/callgate/internal/clock"
)

// Timer is a cancellable one-shot countdown. Each Start arms a fresh
// Callback, so a firing left over from an earlier Start can never reach the
// current onExpire.
type Timer struct {
	clock clock.Clock

	mu       sync.Mutex
	cb       *Callback[struct{}]
	handle   clock.Timer
	deadline time.Time
}

func NewTimer(c clock.Clock) *Timer {
	if c == nil {
		c = clock.Real()
	}
	return &Timer{clock: c}
}

// Start arms the timer for d. A running countdown is cancelled first.
func (t *Timer) Start(d time.Duration, onExpire func()) {
	if d < 0 {
		d = 0
	}
	cb := NewCallback(func(struct{}) {
		if onExpire != nil {
			onExpire()
		}
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.cb = cb
	t.deadline = t.clock.Now().Add(d)
	t.handle = t.clock.AfterFunc(d, func() { cb.Fire(struct{}{}) })
}

// Cancel prevents onExpire from running. It returns false when the timer was
// not armed or has already fired.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked()
}

func (t *Timer) stopLocked() bool {
	if t.cb == nil {
		return false
	}
	won := t.cb.Cancel()
	if t.handle != nil {
		t.handle.Stop()
	}
	return won
}

// Remaining reports the time left until the armed deadline. A cancelled
// timer keeps reporting against its deadline; a fired or unarmed timer
// reports zero.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb == nil || t.cb.Fired() {
		return 0
	}
	left := t.deadline.Sub(t.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cb != nil && t.cb.Pending()
}
