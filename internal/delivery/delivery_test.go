package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastWebhook(url string, attempts int) *WebhookDeliverer {
	return NewWebhookDeliverer(WebhookConfig{
		URL:         url,
		Timeout:     time.Second,
		MaxAttempts: attempts,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	})
}

func TestWebhookDeliversActionJSON(t *testing.T) {
	var got Action
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := fastWebhook(srv.URL, 3)
	a := Action{Name: ActionAnswer, CallID: "42", At: time.Unix(100, 0).UTC()}
	if err := d.Deliver(context.Background(), a); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got.Name != ActionAnswer || got.CallID != "42" {
		t.Fatalf("host received %+v", got)
	}
}

func TestWebhookRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := fastWebhook(srv.URL, 3).Deliver(context.Background(), Action{Name: ActionDecline, CallID: "7"}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := fastWebhook(srv.URL, 5).Deliver(context.Background(), Action{Name: ActionDecline, CallID: "7"})
	if !errors.Is(err, ErrUndeliverable) {
		t.Fatalf("Deliver() error = %v, want ErrUndeliverable", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestWebhookExpiredCallIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	if err := fastWebhook(srv.URL, 3).Deliver(context.Background(), Action{Name: ActionAnswer, CallID: "1"}); err != nil {
		t.Fatalf("Deliver() error = %v, want nil for 410", err)
	}
}

type failingDeliverer struct{ err error }

func (f failingDeliverer) Deliver(context.Context, Action) error { return f.err }
func (f failingDeliverer) Close() error                          { return nil }

func TestMultiDeliversToEverySink(t *testing.T) {
	mem := NewInMemoryDeliverer(0)
	boom := errors.New("boom")
	m := Multi(failingDeliverer{err: boom}, mem)

	err := m.Deliver(context.Background(), Action{Name: ActionAnswer, CallID: "9"})
	if !errors.Is(err, boom) {
		t.Fatalf("Deliver() error = %v, want boom", err)
	}
	if got := mem.Recent(); len(got) != 1 || got[0].CallID != "9" {
		t.Fatalf("memory sink = %+v, want one action for call 9", got)
	}
}

func TestInMemoryDelivererIsBounded(t *testing.T) {
	d := NewInMemoryDeliverer(2)
	for _, id := range []string{"a", "b", "c"} {
		_ = d.Deliver(context.Background(), Action{Name: ActionDecline, CallID: id})
	}
	got := d.Recent()
	if len(got) != 2 || got[0].CallID != "b" || got[1].CallID != "c" {
		t.Fatalf("Recent() = %+v, want [b c]", got)
	}
}

func TestNewWithoutSinksFallsBackToMemory(t *testing.T) {
	d, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := d.(*InMemoryDeliverer); !ok {
		t.Fatalf("New() = %T, want *InMemoryDeliverer", d)
	}
}

func TestDispatchReportsErrorsAsynchronously(t *testing.T) {
	errCh := make(chan error, 1)
	Dispatch(failingDeliverer{err: errors.New("down")}, Action{Name: ActionAnswer, CallID: "1"}, time.Second, func(err error) {
		errCh <- err
	})
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("onError got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("onError not called")
	}
}

func TestEncodeActionUsesHostFieldNames(t *testing.T) {
	data, err := encodeAction(Action{Name: ActionAnswer, CallID: "42"})
	if err != nil {
		t.Fatalf("encodeAction() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["callNotificationResult"] != "Answer" || m["callId"] != "42" {
		t.Fatalf("payload = %s", data)
	}
}
