// Package presentation fans call UI, ringtone and unlock prompts out to
// connected websocket clients and routes their taps back to the session.
package presentation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/callgate/internal/audio"
	"github.com/ent0n29/callgate/internal/authgate"
	"github.com/ent0n29/callgate/internal/callsession"
	"github.com/ent0n29/callgate/internal/protocol"
)

var ErrNoClients = errors.New("no presentation clients connected")

type Config struct {
	RingtoneURL string
	SendBuffer  int
}

// Hub is the bridge between sessions and presentation clients. It never
// calls back into a session while holding its own lock.
type Hub struct {
	cfg Config

	mu       sync.Mutex
	clients  map[*Client]struct{}
	call     *shownCall
	ringing  bool
	route    audio.Route
	prompts  map[string]*prompt
	onSignal func(direction string, t protocol.MessageType)
}

type shownCall struct {
	msg     protocol.ShowCall
	actions callsession.Actions
}

type prompt struct {
	msg       protocol.AuthPrompt
	report    func(authgate.Outcome)
	receivers map[*Client]struct{}
}

// Client is one connected presentation surface.
type Client struct {
	id     string
	send   chan any
	caps   protocol.Capabilities
	closed bool
}

func (c *Client) ID() string { return c.id }

// Send yields messages for the connection writer. It is closed on
// Unregister.
func (c *Client) Send() <-chan any { return c.send }

func NewHub(cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Hub{
		cfg:     cfg,
		clients: make(map[*Client]struct{}),
		prompts: make(map[string]*prompt),
		route:   audio.RouteSpeakerphone,
	}
}

// SetSignalHook observes every message queued or received.
func (h *Hub) SetSignalHook(fn func(direction string, t protocol.MessageType)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSignal = fn
}

// Register adds a client and replays the live call state to it.
func (h *Hub) Register(id string) *Client {
	if id == "" {
		id = uuid.NewString()
	}
	c := &Client{id: id, send: make(chan any, h.cfg.SendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.call != nil {
		h.sendLocked(c, h.showFor(c))
	}
	if h.ringing {
		h.sendLocked(c, protocol.Ringtone{Type: protocol.TypeRingtone, Action: protocol.RingtonePlay, URL: h.cfg.RingtoneURL})
	}
	h.sendLocked(c, protocol.AudioRoute{Type: protocol.TypeAudioRoute, Route: string(h.route)})
	slog.Info("presentation client connected", "client_id", id, "clients", len(h.clients))
	return c
}

// Unregister drops a client. Prompts nobody else can answer resolve as
// Cancelled.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)

	var orphaned []func(authgate.Outcome)
	for id, p := range h.prompts {
		delete(p.receivers, c)
		if len(p.receivers) == 0 {
			orphaned = append(orphaned, p.report)
			delete(h.prompts, id)
		}
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	slog.Info("presentation client disconnected", "client_id", c.id, "clients", remaining)
	for _, report := range orphaned {
		report(authgate.Cancelled)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handle applies a parsed client message.
func (h *Hub) Handle(c *Client, msg any) {
	if t, ok := protocol.TypeOf(msg); ok {
		h.signal("inbound", t)
	}
	switch m := msg.(type) {
	case protocol.Hello:
		h.mu.Lock()
		c.caps = m.Capabilities
		h.mu.Unlock()
		slog.Info("presentation client capabilities", "client_id", c.id, "device_lock", m.Capabilities.DeviceLock, "audio", m.Capabilities.Audio, "full_screen", m.Capabilities.FullScreen)
	case protocol.CallAction:
		h.mu.Lock()
		var actions callsession.Actions
		if h.call != nil && h.call.msg.CallID == m.CallID {
			actions = h.call.actions
		}
		h.mu.Unlock()
		switch {
		case m.Action == protocol.ActionDecline && actions.Decline != nil:
			actions.Decline()
		case m.Action == protocol.ActionAnswer && actions.RequestAnswer != nil:
			actions.RequestAnswer()
		default:
			h.SendError(c, "unknown_call", "no call "+m.CallID+" on screen")
		}
	case protocol.AuthResult:
		h.mu.Lock()
		p, ok := h.prompts[m.RequestID]
		delete(h.prompts, m.RequestID)
		h.mu.Unlock()
		if !ok {
			h.SendError(c, "unknown_auth_request", "no prompt "+m.RequestID)
			return
		}
		p.report(authgate.Outcome(m.Outcome))
	}
}

// SendError queues an error_event for c.
func (h *Hub) SendError(c *Client, code, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(c, protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		Code:   code,
		Source: "presentation",
		Detail: detail,
	})
}

// ShowCall implements callsession.Presenter.
func (h *Hub) ShowCall(_ context.Context, call callsession.Incoming, actions callsession.Actions) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.call = &shownCall{
		msg: protocol.ShowCall{
			Type:           protocol.TypeShowCall,
			CallID:         call.ID,
			Caller:         call.Caller,
			RingDurationMS: call.RingDuration.Milliseconds(),
			RingtoneURL:    h.cfg.RingtoneURL,
		},
		actions: actions,
	}
	if len(h.clients) == 0 {
		return ErrNoClients
	}
	for c := range h.clients {
		h.sendLocked(c, h.showFor(c))
	}
	return nil
}

func (h *Hub) showFor(c *Client) protocol.ShowCall {
	msg := h.call.msg
	msg.FullScreen = c.caps.FullScreen
	msg.RequiresDeviceAuth = h.configuredLocked()
	return msg
}

// Dismiss implements callsession.Presenter.
func (h *Hub) Dismiss(_ context.Context, callID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.call != nil && h.call.msg.CallID == callID {
		h.call = nil
	}
	if len(h.clients) == 0 {
		return ErrNoClients
	}
	h.broadcastLocked(protocol.DismissCall{Type: protocol.TypeDismissCall, CallID: callID})
	return nil
}

// Open implements audio.Device; playback is rendered by the clients.
func (h *Hub) Open() (audio.Playback, error) {
	return hubPlayback{h: h}, nil
}

type hubPlayback struct{ h *Hub }

func (p hubPlayback) Start() error {
	p.h.mu.Lock()
	defer p.h.mu.Unlock()
	p.h.ringing = true
	p.h.broadcastLocked(protocol.Ringtone{Type: protocol.TypeRingtone, Action: protocol.RingtonePlay, URL: p.h.cfg.RingtoneURL})
	return nil
}

func (p hubPlayback) Stop() error {
	p.h.mu.Lock()
	defer p.h.mu.Unlock()
	p.h.ringing = false
	p.h.broadcastLocked(protocol.Ringtone{Type: protocol.TypeRingtone, Action: protocol.RingtoneStop})
	return nil
}

func (hubPlayback) Release() error { return nil }

// SetRoute implements audio.RouteSetter.
func (h *Hub) SetRoute(r audio.Route) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.route = r
	h.broadcastLocked(protocol.AudioRoute{Type: protocol.TypeAudioRoute, Route: string(r)})
	return nil
}

// Ringing reports whether clients were last told to play the ringtone.
func (h *Hub) Ringing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ringing
}

// AuthProvider exposes the hub as an authgate.Provider that can also
// dismiss prompts.
func (h *Hub) AuthProvider() authgate.Provider { return authProvider{h: h} }

type authProvider struct{ h *Hub }

func (a authProvider) Configured() bool { return a.h.Configured() }

func (a authProvider) Prompt(ctx context.Context, req authgate.Request, report func(authgate.Outcome)) error {
	return a.h.Prompt(ctx, req, report)
}

func (a authProvider) Dismiss(requestID string) { a.h.DismissPrompt(requestID) }

// Configured reports whether any client has a device lock to check against.
func (h *Hub) Configured() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.configuredLocked()
}

func (h *Hub) configuredLocked() bool {
	for c := range h.clients {
		if c.caps.DeviceLock {
			return true
		}
	}
	return false
}

// Prompt shows an unlock prompt on every client with a device lock.
func (h *Hub) Prompt(_ context.Context, req authgate.Request, report func(authgate.Outcome)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := &prompt{
		msg: protocol.AuthPrompt{
			Type:        protocol.TypeAuthPrompt,
			RequestID:   req.ID,
			CallID:      req.CallID,
			Title:       req.Title,
			Description: req.Description,
		},
		report:    report,
		receivers: make(map[*Client]struct{}),
	}
	for c := range h.clients {
		if c.caps.DeviceLock && h.sendLocked(c, p.msg) {
			p.receivers[c] = struct{}{}
		}
	}
	if len(p.receivers) == 0 {
		return ErrNoClients
	}
	h.prompts[req.ID] = p
	return nil
}

// DismissPrompt withdraws a prompt from the clients that were shown it.
func (h *Hub) DismissPrompt(requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.prompts[requestID]
	if !ok {
		return
	}
	delete(h.prompts, requestID)
	for c := range p.receivers {
		h.sendLocked(c, protocol.AuthDismiss{Type: protocol.TypeAuthDismiss, RequestID: requestID})
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for c := range h.clients {
		h.sendLocked(c, msg)
	}
}

// sendLocked never blocks; a saturated client drops the message.
func (h *Hub) sendLocked(c *Client, msg any) bool {
	if c.closed {
		return false
	}
	t, _ := protocol.TypeOf(msg)
	select {
	case c.send <- msg:
		if h.onSignal != nil {
			h.onSignal("outbound", t)
		}
		return true
	default:
		slog.Warn("presentation client queue full; dropping message", "client_id", c.id, "type", string(t))
		return false
	}
}

func (h *Hub) signal(direction string, t protocol.MessageType) {
	h.mu.Lock()
	fn := h.onSignal
	h.mu.Unlock()
	if fn != nil {
		fn(direction, t)
	}
}
