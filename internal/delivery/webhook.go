package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ent0n29/callgate/internal/reliability"
)

// WebhookConfig points at the host's HTTP action endpoint.
type WebhookConfig struct {
	URL         string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// WebhookDeliverer POSTs actions as JSON, retrying transient failures.
type WebhookDeliverer struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhookDeliverer(cfg WebhookConfig) *WebhookDeliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 2 * time.Second
	}
	return &WebhookDeliverer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, a Action) error {
	payload, err := encodeAction(a)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, d.cfg.BackoffBase, d.cfg.BackoffCap)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		retry, err := d.post(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return fmt.Errorf("%w: %v", ErrUndeliverable, lastErr)
}

func (d *WebhookDeliverer) post(ctx context.Context, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := d.client.Do(req)
	if err != nil {
		return ctx.Err() == nil && reliability.IsRetryableTransportError(err), err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return false, nil
	case res.StatusCode == http.StatusGone || res.StatusCode == http.StatusNotFound:
		// The host already dropped the call.
		return false, nil
	default:
		return reliability.IsRetryableHTTPStatus(res.StatusCode), fmt.Errorf("webhook status %d", res.StatusCode)
	}
}

func (d *WebhookDeliverer) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
