package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Config selects the delivery sinks. Empty addresses disable a sink.
type Config struct {
	Redis   RedisConfig
	Webhook WebhookConfig
}

// New builds the configured sinks. With none configured it falls back to the
// in-memory deliverer.
func New(ctx context.Context, cfg Config) (Deliverer, error) {
	var sinks []Deliverer
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rd, err := NewRedisDeliverer(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rd)
	}
	if strings.TrimSpace(cfg.Webhook.URL) != "" {
		sinks = append(sinks, NewWebhookDeliverer(cfg.Webhook))
	}
	switch len(sinks) {
	case 0:
		return NewInMemoryDeliverer(0), nil
	case 1:
		return sinks[0], nil
	default:
		return Multi(sinks...), nil
	}
}

type multi struct {
	sinks []Deliverer
}

// Multi fans an action out to every sink and joins their errors.
func Multi(sinks ...Deliverer) Deliverer {
	return &multi{sinks: sinks}
}

func (m *multi) Deliver(ctx context.Context, a Action) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Deliver(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatch delivers a in the background. Errors are logged and passed to
// onError; the caller never waits.
func Dispatch(d Deliverer, a Action, timeout time.Duration, onError func(error)) {
	if d == nil {
		return
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := d.Deliver(ctx, a); err != nil {
			slog.Warn("action delivery failed", "call_id", a.CallID, "action", string(a.Name), "error", err)
			if onError != nil {
				onError(err)
			}
		}
	}()
}
