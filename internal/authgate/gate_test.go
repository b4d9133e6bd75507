package authgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ent0n29/callgate/internal/clock"
)

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatalf("no outcome delivered")
		return ""
	}
}

func waitPrompt(t *testing.T, p *MockProvider) Request {
	t.Helper()
	select {
	case req := <-p.Prompted():
		return req
	case <-time.After(2 * time.Second):
		t.Fatalf("provider was not prompted")
		return Request{}
	}
}

func TestGateUnconfiguredSucceedsImmediately(t *testing.T) {
	g := New(NewMockProvider(false), Config{})
	ch := make(chan Outcome, 2)
	g.Request(context.Background(), Request{CallID: "c1"}, func(o Outcome) { ch <- o })
	if got := waitOutcome(t, ch); got != Succeeded {
		t.Fatalf("outcome = %q, want %q", got, Succeeded)
	}
}

func TestGateNilProviderSucceeds(t *testing.T) {
	g := New(nil, Config{})
	ch := make(chan Outcome, 1)
	g.Request(context.Background(), Request{}, func(o Outcome) { ch <- o })
	if got := waitOutcome(t, ch); got != Succeeded {
		t.Fatalf("outcome = %q, want %q", got, Succeeded)
	}
}

func TestGateDeliversProviderOutcomeOnce(t *testing.T) {
	prov := NewMockProvider(true)
	g := New(prov, Config{})
	ch := make(chan Outcome, 4)
	p := g.Request(context.Background(), Request{CallID: "c1", Title: "t"}, func(o Outcome) { ch <- o })

	req := waitPrompt(t, prov)
	if req.ID != p.ID || req.ID == "" {
		t.Fatalf("prompt id = %q, pending id = %q", req.ID, p.ID)
	}
	if err := prov.Report(req.ID, Failed); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if got := waitOutcome(t, ch); got != Failed {
		t.Fatalf("outcome = %q, want %q", got, Failed)
	}
	if !p.Done() {
		t.Fatalf("Done() = false after outcome")
	}
	if p.Cancel() {
		t.Fatalf("Cancel() after outcome = true, want false")
	}
}

func TestGateCancelSuppressesLateOutcome(t *testing.T) {
	prov := NewMockProvider(true)
	g := New(prov, Config{})
	ch := make(chan Outcome, 1)
	p := g.Request(context.Background(), Request{CallID: "c1"}, func(o Outcome) { ch <- o })
	req := waitPrompt(t, prov)

	if !p.Cancel() {
		t.Fatalf("Cancel() = false, want true")
	}
	_ = prov.Report(req.ID, Succeeded)

	select {
	case o := <-ch:
		t.Fatalf("late outcome %q delivered after cancel", o)
	case <-time.After(50 * time.Millisecond):
	}
	if d := prov.Dismissed(); len(d) != 1 || d[0] != req.ID {
		t.Fatalf("Dismissed() = %v, want [%s]", d, req.ID)
	}
}

func TestGateProviderErrorResolvesCancelled(t *testing.T) {
	prov := NewMockProvider(true)
	prov.SetPromptError(errors.New("keyguard unreachable"))
	g := New(prov, Config{})
	ch := make(chan Outcome, 1)
	g.Request(context.Background(), Request{CallID: "c1"}, func(o Outcome) { ch <- o })
	if got := waitOutcome(t, ch); got != Cancelled {
		t.Fatalf("outcome = %q, want %q", got, Cancelled)
	}
}

func TestGateTimeoutResolvesCancelled(t *testing.T) {
	prov := NewMockProvider(true)
	c := clock.NewMock(time.Unix(0, 0))
	g := New(prov, Config{Clock: c, Timeout: 30 * time.Second})
	ch := make(chan Outcome, 2)
	g.Request(context.Background(), Request{CallID: "c1"}, func(o Outcome) { ch <- o })
	req := waitPrompt(t, prov)

	c.Advance(30 * time.Second)
	if got := waitOutcome(t, ch); got != Cancelled {
		t.Fatalf("outcome = %q, want %q", got, Cancelled)
	}
	if got := prov.Dismissed(); len(got) != 1 || got[0] != req.ID {
		t.Fatalf("Dismissed() = %v, want [%s]", got, req.ID)
	}
	_ = prov.Report(req.ID, Succeeded)
	select {
	case o := <-ch:
		t.Fatalf("second outcome %q delivered", o)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGateAnsweredPromptIsNotDismissed(t *testing.T) {
	prov := NewMockProvider(true)
	c := clock.NewMock(time.Unix(0, 0))
	g := New(prov, Config{Clock: c, Timeout: 30 * time.Second})
	ch := make(chan Outcome, 2)
	g.Request(context.Background(), Request{CallID: "c1"}, func(o Outcome) { ch <- o })
	req := waitPrompt(t, prov)

	_ = prov.Report(req.ID, Succeeded)
	if got := waitOutcome(t, ch); got != Succeeded {
		t.Fatalf("outcome = %q, want %q", got, Succeeded)
	}
	c.Advance(time.Minute)
	if got := prov.Dismissed(); len(got) != 0 {
		t.Fatalf("Dismissed() = %v after user answered", got)
	}
}
