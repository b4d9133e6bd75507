package presentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ent0n29/callgate/internal/audio"
	"github.com/ent0n29/callgate/internal/authgate"
	"github.com/ent0n29/callgate/internal/callsession"
	"github.com/ent0n29/callgate/internal/clock"
	"github.com/ent0n29/callgate/internal/protocol"
)

func newWiredHub(t *testing.T) (*Hub, *callsession.Manager) {
	t.Helper()
	hub := NewHub(Config{RingtoneURL: "/v1/audio/ringtone.wav"})
	mgr := callsession.NewManager(callsession.Config{AuthTitle: "Unlock to answer"}, callsession.Deps{
		Presenter: hub,
		Audio:     audio.NewResource(hub),
		Auth:      authgate.New(hub.AuthProvider(), authgate.Config{}),
	})
	return hub, mgr
}

func expect[T any](t *testing.T, c *Client, want protocol.MessageType) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Send():
			if !ok {
				t.Fatalf("client channel closed waiting for %s", want)
			}
			if got, _ := protocol.TypeOf(msg); got == want {
				return msg.(T)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func startCall(t *testing.T, mgr *callsession.Manager, id string) *callsession.Session {
	t.Helper()
	s, err := mgr.StartCall(context.Background(), callsession.StartRequest{CallID: id, Caller: "Bob", RingDurationSeconds: 30})
	if err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	return s
}

func TestShowCallWithoutClients(t *testing.T) {
	hub := NewHub(Config{})
	err := hub.ShowCall(context.Background(), callsession.Incoming{ID: "c1"}, callsession.Actions{})
	if !errors.Is(err, ErrNoClients) {
		t.Fatalf("ShowCall() error = %v, want ErrNoClients", err)
	}

	c := hub.Register("late")
	show := expect[protocol.ShowCall](t, c, protocol.TypeShowCall)
	if show.CallID != "c1" {
		t.Fatalf("replayed call = %q, want c1", show.CallID)
	}
}

func TestAnswerFlowThroughHub(t *testing.T) {
	hub, mgr := newWiredHub(t)
	c := hub.Register("phone")
	hub.Handle(c, protocol.Hello{Type: protocol.TypeHello, Capabilities: protocol.Capabilities{DeviceLock: true, Audio: true, FullScreen: true}})

	s := startCall(t, mgr, "c1")
	ring := expect[protocol.Ringtone](t, c, protocol.TypeRingtone)
	if ring.Action != protocol.RingtonePlay || ring.URL == "" {
		t.Fatalf("ringtone = %+v, want play with url", ring)
	}
	show := expect[protocol.ShowCall](t, c, protocol.TypeShowCall)
	if show.Caller != "Bob" || !show.FullScreen || !show.RequiresDeviceAuth {
		t.Fatalf("show_call = %+v", show)
	}

	hub.Handle(c, protocol.CallAction{Type: protocol.TypeCallAction, CallID: "c1", Action: protocol.ActionAnswer})
	prompt := expect[protocol.AuthPrompt](t, c, protocol.TypeAuthPrompt)
	if prompt.CallID != "c1" || prompt.Title != "Unlock to answer" {
		t.Fatalf("auth_prompt = %+v", prompt)
	}

	hub.Handle(c, protocol.AuthResult{Type: protocol.TypeAuthResult, RequestID: prompt.RequestID, Outcome: string(authgate.Succeeded)})
	if s.State() != callsession.StateAnswered {
		t.Fatalf("state = %s, want answered", s.State())
	}
	stop := expect[protocol.Ringtone](t, c, protocol.TypeRingtone)
	if stop.Action != protocol.RingtoneStop {
		t.Fatalf("ringtone = %+v, want stop", stop)
	}
	expect[protocol.DismissCall](t, c, protocol.TypeDismissCall)
	if hub.Ringing() {
		t.Fatalf("hub still ringing after answer")
	}
}

func TestDisconnectDuringPromptCancelsAuth(t *testing.T) {
	hub, mgr := newWiredHub(t)
	c := hub.Register("phone")
	hub.Handle(c, protocol.Hello{Type: protocol.TypeHello, Capabilities: protocol.Capabilities{DeviceLock: true}})
	s := startCall(t, mgr, "c1")

	hub.Handle(c, protocol.CallAction{Type: protocol.TypeCallAction, CallID: "c1", Action: protocol.ActionAnswer})
	expect[protocol.AuthPrompt](t, c, protocol.TypeAuthPrompt)

	hub.Unregister(c)
	if s.State() != callsession.StateRinging {
		t.Fatalf("state = %s, want ringing after prompt client left", s.State())
	}
	for range c.Send() {
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d after unregister", hub.ClientCount())
	}
}

func TestDeclineWithoutDeviceLock(t *testing.T) {
	hub, mgr := newWiredHub(t)
	c := hub.Register("tablet")
	s := startCall(t, mgr, "c1")
	show := expect[protocol.ShowCall](t, c, protocol.TypeShowCall)
	if show.RequiresDeviceAuth {
		t.Fatalf("requires_device_auth = true without a locked client")
	}

	hub.Handle(c, protocol.CallAction{Type: protocol.TypeCallAction, CallID: "c1", Action: protocol.ActionDecline})
	if s.State() != callsession.StateDeclined {
		t.Fatalf("state = %s, want declined", s.State())
	}
}

func TestUnknownCallActionReportsError(t *testing.T) {
	hub := NewHub(Config{})
	c := hub.Register("phone")
	hub.Handle(c, protocol.CallAction{Type: protocol.TypeCallAction, CallID: "ghost", Action: protocol.ActionAnswer})
	ev := expect[protocol.ErrorEvent](t, c, protocol.TypeErrorEvent)
	if ev.Code != "unknown_call" {
		t.Fatalf("error code = %q, want unknown_call", ev.Code)
	}

	hub.Handle(c, protocol.AuthResult{Type: protocol.TypeAuthResult, RequestID: "r0", Outcome: "succeeded"})
	ev = expect[protocol.ErrorEvent](t, c, protocol.TypeErrorEvent)
	if ev.Code != "unknown_auth_request" {
		t.Fatalf("error code = %q, want unknown_auth_request", ev.Code)
	}
}

func TestPromptWithoutLockedClientFails(t *testing.T) {
	hub := NewHub(Config{})
	hub.Register("tablet")
	if hub.Configured() {
		t.Fatalf("Configured() = true without a locked client")
	}
	err := hub.Prompt(context.Background(), authgate.Request{ID: "r1"}, func(authgate.Outcome) {})
	if !errors.Is(err, ErrNoClients) {
		t.Fatalf("Prompt() error = %v, want ErrNoClients", err)
	}
}

func TestDismissPromptNotifiesReceivers(t *testing.T) {
	hub := NewHub(Config{})
	c := hub.Register("phone")
	hub.Handle(c, protocol.Hello{Type: protocol.TypeHello, Capabilities: protocol.Capabilities{DeviceLock: true}})
	if err := hub.Prompt(context.Background(), authgate.Request{ID: "r1", CallID: "c1"}, func(authgate.Outcome) {}); err != nil {
		t.Fatalf("Prompt() error = %v", err)
	}
	hub.AuthProvider().(authgate.Dismisser).Dismiss("r1")
	d := expect[protocol.AuthDismiss](t, c, protocol.TypeAuthDismiss)
	if d.RequestID != "r1" {
		t.Fatalf("auth_dismiss = %+v", d)
	}
}

func TestSetRouteBroadcasts(t *testing.T) {
	hub := NewHub(Config{})
	c := hub.Register("phone")
	expect[protocol.AudioRoute](t, c, protocol.TypeAudioRoute)

	res := audio.NewResource(hub)
	if err := res.SetRoute(audio.RouteEarpiece); err != nil {
		t.Fatalf("SetRoute() error = %v", err)
	}
	r := expect[protocol.AudioRoute](t, c, protocol.TypeAudioRoute)
	if r.Route != string(audio.RouteEarpiece) {
		t.Fatalf("route = %q, want Earpiece", r.Route)
	}
}

func TestSignalHookCountsMessages(t *testing.T) {
	hub := NewHub(Config{})
	counts := map[string]int{}
	hub.SetSignalHook(func(direction string, _ protocol.MessageType) { counts[direction]++ })
	c := hub.Register("phone")
	hub.Handle(c, protocol.Hello{Type: protocol.TypeHello})
	if counts["outbound"] == 0 || counts["inbound"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestTimedOutPromptIsWithdrawn(t *testing.T) {
	hub := NewHub(Config{})
	c := hub.Register("phone")
	hub.Handle(c, protocol.Hello{Type: protocol.TypeHello, Capabilities: protocol.Capabilities{DeviceLock: true}})

	mock := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	gate := authgate.New(hub.AuthProvider(), authgate.Config{Clock: mock, Timeout: 10 * time.Second})
	outcomes := make(chan authgate.Outcome, 2)
	gate.Request(context.Background(), authgate.Request{CallID: "c1", Title: "Unlock"}, func(o authgate.Outcome) { outcomes <- o })
	prompt := expect[protocol.AuthPrompt](t, c, protocol.TypeAuthPrompt)

	mock.Advance(11 * time.Second)
	select {
	case o := <-outcomes:
		if o != authgate.Cancelled {
			t.Fatalf("outcome = %q, want cancelled", o)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no outcome after prompt timeout")
	}
	d := expect[protocol.AuthDismiss](t, c, protocol.TypeAuthDismiss)
	if d.RequestID != prompt.RequestID {
		t.Fatalf("auth_dismiss = %+v, want request %s", d, prompt.RequestID)
	}

	// The hub no longer holds the prompt, so a late answer is rejected.
	hub.Handle(c, protocol.AuthResult{Type: protocol.TypeAuthResult, RequestID: prompt.RequestID, Outcome: string(authgate.Succeeded)})
	ev := expect[protocol.ErrorEvent](t, c, protocol.TypeErrorEvent)
	if ev.Code != "unknown_auth_request" {
		t.Fatalf("error code = %q, want unknown_auth_request", ev.Code)
	}
	select {
	case o := <-outcomes:
		t.Fatalf("second outcome %q delivered", o)
	default:
	}
}
