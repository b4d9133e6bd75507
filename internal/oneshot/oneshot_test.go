package oneshot

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/callgate/internal/clock"
)

func TestCallbackFiresOnce(t *testing.T) {
	var got []int
	cb := NewCallback(func(v int) { got = append(got, v) })
	if !cb.Fire(1) {
		t.Fatalf("first Fire() = false, want true")
	}
	if cb.Fire(2) {
		t.Fatalf("second Fire() = true, want false")
	}
	if cb.Cancel() {
		t.Fatalf("Cancel() after fire = true, want false")
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("delivered = %v, want [1]", got)
	}
}

func TestCallbackCancelWinsOverLaterFire(t *testing.T) {
	fired := false
	cb := NewCallback(func(struct{}) { fired = true })
	if !cb.Cancel() {
		t.Fatalf("Cancel() = false, want true")
	}
	if cb.Fire(struct{}{}) {
		t.Fatalf("Fire() after cancel = true, want false")
	}
	if fired {
		t.Fatalf("callback ran after cancel")
	}
}

func TestCallbackConcurrentFireAndCancelHaveOneWinner(t *testing.T) {
	for i := 0; i < 200; i++ {
		var runs atomic.Int32
		cb := NewCallback(func(struct{}) { runs.Add(1) })
		var fireWon, cancelWon bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); fireWon = cb.Fire(struct{}{}) }()
		go func() { defer wg.Done(); cancelWon = cb.Cancel() }()
		wg.Wait()
		if fireWon == cancelWon {
			t.Fatalf("fireWon=%v cancelWon=%v, want exactly one winner", fireWon, cancelWon)
		}
		if cancelWon && runs.Load() != 0 {
			t.Fatalf("callback ran although cancel won")
		}
	}
}

func TestTimerFiresAtDeadline(t *testing.T) {
	c := clock.NewMock(time.Unix(0, 0))
	tm := NewTimer(c)
	fired := 0
	tm.Start(10*time.Second, func() { fired++ })

	c.Advance(9 * time.Second)
	if fired != 0 {
		t.Fatalf("fired early at 9s")
	}
	if got := tm.Remaining(); got != time.Second {
		t.Fatalf("Remaining() = %v, want 1s", got)
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if got := tm.Remaining(); got != 0 {
		t.Fatalf("Remaining() after fire = %v, want 0", got)
	}
	if tm.Cancel() {
		t.Fatalf("Cancel() after fire = true, want false")
	}
}

func TestTimerCancelSuppressesExpiry(t *testing.T) {
	c := clock.NewMock(time.Unix(0, 0))
	tm := NewTimer(c)
	fired := false
	tm.Start(5*time.Second, func() { fired = true })
	c.Advance(2 * time.Second)

	if !tm.Cancel() {
		t.Fatalf("Cancel() = false, want true")
	}
	if tm.Cancel() {
		t.Fatalf("second Cancel() = true, want false")
	}
	if got := tm.Remaining(); got != 3*time.Second {
		t.Fatalf("Remaining() after cancel = %v, want 3s", got)
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatalf("cancelled timer fired")
	}
	if got := tm.Remaining(); got != 0 {
		t.Fatalf("Remaining() past deadline = %v, want 0", got)
	}
}

func TestTimerRestartDropsPreviousCountdown(t *testing.T) {
	c := clock.NewMock(time.Unix(0, 0))
	tm := NewTimer(c)
	var first, second int
	tm.Start(time.Second, func() { first++ })
	tm.Start(3*time.Second, func() { second++ })

	c.Advance(5 * time.Second)
	if first != 0 || second != 1 {
		t.Fatalf("first=%d second=%d, want 0 and 1", first, second)
	}
}

func TestTimerRealClock(t *testing.T) {
	tm := NewTimer(nil)
	done := make(chan struct{})
	tm.Start(10*time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}
	if tm.Running() {
		t.Fatalf("Running() = true after fire")
	}
}
