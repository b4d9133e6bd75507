package delivery

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryDeliverer logs actions and keeps a bounded in-process history.
// It is the fallback when no external sink is configured.
type InMemoryDeliverer struct {
	mu      sync.RWMutex
	actions []Action
	limit   int
}

func NewInMemoryDeliverer(limit int) *InMemoryDeliverer {
	if limit <= 0 {
		limit = 64
	}
	return &InMemoryDeliverer{limit: limit}
}

func (d *InMemoryDeliverer) Deliver(_ context.Context, a Action) error {
	slog.Info("call action", "action", string(a.Name), "call_id", a.CallID)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, a)
	if len(d.actions) > d.limit {
		d.actions = d.actions[len(d.actions)-d.limit:]
	}
	return nil
}

// Recent returns delivered actions, oldest first.
func (d *InMemoryDeliverer) Recent() []Action {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Action, len(d.actions))
	copy(out, d.actions)
	return out
}

func (d *InMemoryDeliverer) Close() error { return nil }
