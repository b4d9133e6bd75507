package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ent0n29/callgate/internal/callsession"
	"github.com/ent0n29/callgate/internal/config"
	"github.com/ent0n29/callgate/internal/delivery"
)

func testConfig(ns string) config.Config {
	return config.Config{
		MetricsNamespace:    fmt.Sprintf("test_app_%s_%d", ns, time.Now().UnixNano()),
		ShutdownTimeout:     time.Second,
		MaxRingDuration:     time.Minute,
		AudioDuringAuth:     "continue",
		AuthProvider:        "presentation",
		AuthGrace:           30 * time.Second,
		AuthTitle:           "Unlock",
		DeliveryTimeout:     time.Second,
		DeliveryMaxAttempts: 1,
		RateLimit:           100,
		RateBurst:           100,
		RingtoneToneHz:      []float64{440, 480},
	}
}

func TestBuildWiresInMemoryDelivery(t *testing.T) {
	res, err := Build(context.Background(), testConfig("mem"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if _, err := res.Calls.StartCall(context.Background(), callsession.StartRequest{CallID: "c1", RingDurationSeconds: 30}); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if !res.Audio.Playing() || !res.Hub.Ringing() {
		t.Fatalf("ringtone not started through the hub")
	}
	if err := res.Calls.Decline("c1"); err != nil {
		t.Fatalf("Decline() error = %v", err)
	}

	inst, ok := res.Deliverer.(*instrumentedDeliverer)
	if !ok {
		t.Fatalf("deliverer = %T, want instrumented", res.Deliverer)
	}
	mem, ok := inst.next.(*delivery.InMemoryDeliverer)
	if !ok {
		t.Fatalf("sink = %T, want in-memory", inst.next)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(mem.Recent()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := mem.Recent(); len(got) != 1 || got[0].Name != delivery.ActionDecline {
		t.Fatalf("delivered = %+v, want one Decline", got)
	}
	if snap := res.Metrics.SnapshotStages(); len(snap.Stages) == 0 {
		t.Fatalf("no stage samples recorded")
	}
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig("redis")
	cfg.RedisAddr = "127.0.0.1:1"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() with unreachable redis error = nil")
	}
}

func TestSinkName(t *testing.T) {
	cfg := testConfig("sink")
	if got := sinkName(cfg); got != "memory" {
		t.Fatalf("sinkName() = %q, want memory", got)
	}
	cfg.WebhookURL = "http://host/hook"
	cfg.RedisAddr = "localhost:6379"
	if got := sinkName(cfg); got != "redis+webhook" {
		t.Fatalf("sinkName() = %q, want redis+webhook", got)
	}
}
