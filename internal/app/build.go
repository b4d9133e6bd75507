package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ent0n29/callgate/internal/audio"
	"github.com/ent0n29/callgate/internal/authgate"
	"github.com/ent0n29/callgate/internal/callsession"
	"github.com/ent0n29/callgate/internal/config"
	"github.com/ent0n29/callgate/internal/delivery"
	"github.com/ent0n29/callgate/internal/httpapi"
	"github.com/ent0n29/callgate/internal/observability"
	"github.com/ent0n29/callgate/internal/presentation"
	"github.com/ent0n29/callgate/internal/protocol"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Calls     *callsession.Manager
	Hub       *presentation.Hub
	Audio     *audio.Resource
	Deliverer delivery.Deliverer
	Metrics   *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	hub := presentation.NewHub(presentation.Config{RingtoneURL: httpapi.RingtonePath})
	hub.SetSignalHook(func(direction string, t protocol.MessageType) {
		metrics.ObserveWSMessage(direction, string(t))
	})
	ringer := audio.NewResource(hub)

	var provider authgate.Provider
	if cfg.AuthProvider == "presentation" {
		provider = hub.AuthProvider()
	}
	gate := authgate.New(provider, authgate.Config{Timeout: cfg.AuthTimeout})

	sinks, err := delivery.New(ctx, delivery.Config{
		Redis: delivery.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		},
		Webhook: delivery.WebhookConfig{
			URL:         cfg.WebhookURL,
			Timeout:     cfg.DeliveryTimeout,
			MaxAttempts: cfg.DeliveryMaxAttempts,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("delivery init failed: %w", err)
	}
	deliverer := &instrumentedDeliverer{next: sinks, sink: sinkName(cfg), metrics: metrics}

	calls := callsession.NewManager(callsession.Config{
		AudioDuringAuth: callsession.AudioPolicy(cfg.AudioDuringAuth),
		AuthTitle:       cfg.AuthTitle,
		AuthDescription: cfg.AuthDescription,
		MaxRingDuration: cfg.MaxRingDuration,
		AuthGrace:       cfg.AuthGrace,
		// Room for every webhook attempt plus backoff.
		DeliveryTimeout: cfg.DeliveryTimeout * time.Duration(cfg.DeliveryMaxAttempts+1),
	}, callsession.Deps{
		Presenter: hub,
		Audio:     ringer,
		Auth:      gate,
		Deliverer: deliverer,
	})
	calls.SetHooks(callsession.Hooks{
		OnStart: func(string) { metrics.CallStarted() },
		OnResolve: func(r callsession.Resolution, ringing time.Duration) {
			metrics.ObserveResolution(string(r.Outcome), ringing)
		},
		OnAuth: func(_ string, o authgate.Outcome, took time.Duration) {
			metrics.ObserveAuth(string(o), took)
		},
		OnDrop: func(_ string, event, _ string) {
			metrics.ObserveDrop(event)
		},
	})

	api := httpapi.New(cfg, calls, hub, ringer, metrics)

	cleanup := func() error {
		calls.Shutdown()
		api.Close()
		return deliverer.Close()
	}

	slog.Info("call gate wired",
		"auth_provider", cfg.AuthProvider,
		"audio_during_auth", cfg.AudioDuringAuth,
		"delivery", deliverer.sink,
	)

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Calls:     calls,
		Hub:       hub,
		Audio:     ringer,
		Deliverer: deliverer,
		Metrics:   metrics,
		Cleanup:   cleanup,
	}, nil
}

func sinkName(cfg config.Config) string {
	switch {
	case cfg.RedisAddr != "" && cfg.WebhookURL != "":
		return "redis+webhook"
	case cfg.RedisAddr != "":
		return "redis"
	case cfg.WebhookURL != "":
		return "webhook"
	default:
		return "memory"
	}
}

// instrumentedDeliverer records delivery latency and failures.
type instrumentedDeliverer struct {
	next    delivery.Deliverer
	sink    string
	metrics *observability.Metrics
}

func (d *instrumentedDeliverer) Deliver(ctx context.Context, a delivery.Action) error {
	start := time.Now()
	err := d.next.Deliver(ctx, a)
	d.metrics.ObserveDelivery(d.sink, time.Since(start), err)
	return err
}

func (d *instrumentedDeliverer) Close() error {
	if err := d.next.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
