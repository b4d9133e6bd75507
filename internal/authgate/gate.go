package authgate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/callgate/internal/clock"
	"github.com/ent0n29/callgate/internal/oneshot"
)

type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Failed    Outcome = "failed"
	Cancelled Outcome = "cancelled"
)

func (o Outcome) Valid() bool {
	switch o {
	case Succeeded, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// Request is one device-unlock prompt.
type Request struct {
	ID          string
	CallID      string
	Title       string
	Description string
}

// Provider performs the physical credential check. Prompt must not block
// until the user answers; the outcome is reported through report.
type Provider interface {
	// Configured is false when the device has no lock to check against.
	Configured() bool
	Prompt(ctx context.Context, req Request, report func(Outcome)) error
}

// Dismisser is implemented by providers that can withdraw a shown prompt.
type Dismisser interface {
	Dismiss(requestID string)
}

// Gate turns provider prompts into exactly-once asynchronous outcomes.
type Gate struct {
	provider Provider
	clock    clock.Clock
	timeout  time.Duration
}

type Config struct {
	Clock clock.Clock
	// Timeout resolves an unanswered prompt as Cancelled. Zero disables it.
	Timeout time.Duration
}

func New(provider Provider, cfg Config) *Gate {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Gate{provider: provider, clock: cfg.Clock, timeout: cfg.Timeout}
}

// Pending is an in-flight request. Its outcome callback fires at most once.
type Pending struct {
	ID       string
	cb       *oneshot.Callback[Outcome]
	timeout  *oneshot.Timer
	provider Provider
}

// Request starts a prompt and returns immediately. onOutcome is always
// invoked from another goroutine.
func (g *Gate) Request(ctx context.Context, req Request, onOutcome func(Outcome)) *Pending {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	p := &Pending{
		ID:       req.ID,
		cb:       oneshot.NewCallback(onOutcome),
		provider: g.provider,
	}

	if g.provider == nil || !g.provider.Configured() {
		slog.Debug("device authentication not configured; treating as unlocked", "call_id", req.CallID)
		go p.resolve(Succeeded)
		return p
	}

	if g.timeout > 0 {
		p.timeout = oneshot.NewTimer(g.clock)
		p.timeout.Start(g.timeout, func() {
			if p.cb.Fire(Cancelled) {
				slog.Info("device authentication timed out", "call_id", req.CallID, "request_id", req.ID)
				p.withdraw()
			}
		})
	}

	go func() {
		if err := g.provider.Prompt(ctx, req, p.resolve); err != nil {
			slog.Warn("device authentication unavailable", "call_id", req.CallID, "error", err)
			p.resolve(Cancelled)
		}
	}()
	return p
}

func (p *Pending) resolve(o Outcome) {
	if !o.Valid() {
		o = Failed
	}
	if p.cb.Fire(o) && p.timeout != nil {
		p.timeout.Cancel()
	}
}

// Cancel suppresses the outcome callback. The provider prompt is asked to
// close but is not interrupted.
func (p *Pending) Cancel() bool {
	if p == nil {
		return false
	}
	won := p.cb.Cancel()
	if p.timeout != nil {
		p.timeout.Cancel()
	}
	if won {
		p.withdraw()
	}
	return won
}

// withdraw asks the provider to take down a prompt whose outcome no longer
// comes from the user.
func (p *Pending) withdraw() {
	if d, ok := p.provider.(Dismisser); ok {
		d.Dismiss(p.ID)
	}
}

func (p *Pending) Done() bool {
	return p == nil || !p.cb.Pending()
}
