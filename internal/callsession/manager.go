package callsession

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/callgate/internal/audio"
	"github.com/ent0n29/callgate/internal/authgate"
	"github.com/ent0n29/callgate/internal/clock"
)

// Manager owns at most one live session and the result mailbox. It is the
// only entry point the host uses.
type Manager struct {
	cfg     Config
	deps    Deps
	mailbox Mailbox

	mu     sync.Mutex
	active *Session
	hooks  Hooks
}

func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.AudioDuringAuth == "" {
		cfg.AudioDuringAuth = AudioContinue
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.AuthGrace <= 0 {
		cfg.AuthGrace = 30 * time.Second
	}
	if deps.Presenter == nil {
		deps.Presenter = noopPresenter{}
	}
	if deps.Audio == nil {
		deps.Audio = audio.NewResource(audio.NullDevice{})
	}
	if deps.Auth == nil {
		deps.Auth = authgate.New(nil, authgate.Config{Clock: cfg.Clock})
	}
	return &Manager{cfg: cfg, deps: deps}
}

// SetHooks installs observers for sessions started afterwards.
func (m *Manager) SetHooks(h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

// StartCall creates a session and starts ringing. Only one non-terminal
// session may exist at a time.
func (m *Manager) StartCall(ctx context.Context, req StartRequest) (*Session, error) {
	req.CallID = strings.TrimSpace(req.CallID)
	req.Caller = strings.TrimSpace(req.Caller)
	if err := req.validate(m.cfg.MaxRingDuration); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.active != nil {
		activeID := m.active.id
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyActive, activeID)
	}
	s := newSession(req, m.cfg, m.deps, m.hooks)
	s.onResolve = m.sessionResolved
	m.active = s
	m.mu.Unlock()

	s.start(ctx)
	return s, nil
}

// sessionResolved runs under the session lock. It must not take any
// session lock itself.
func (m *Manager) sessionResolved(s *Session, r Resolution) {
	m.mailbox.Post(r)
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
}

// QueryLastResult hands the latest resolution to the host and clears it.
func (m *Manager) QueryLastResult() (Resolution, bool) {
	return m.mailbox.Take()
}

// CancelActiveAudio stops the ringtone without changing any session state.
func (m *Manager) CancelActiveAudio() error {
	return m.deps.Audio.Stop()
}

// Active returns the non-terminal session, if any.
func (m *Manager) Active() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != nil
}

func (m *Manager) activeFor(callID string) (*Session, error) {
	s, ok := m.Active()
	if !ok || s.id != callID {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveSession, callID)
	}
	return s, nil
}

// Decline forwards a user decline to the active session with callID.
func (m *Manager) Decline(callID string) error {
	s, err := m.activeFor(callID)
	if err != nil {
		return err
	}
	s.Decline()
	return nil
}

// RequestAnswer forwards an answer tap to the active session with callID.
func (m *Manager) RequestAnswer(callID string) error {
	s, err := m.activeFor(callID)
	if err != nil {
		return err
	}
	s.RequestAnswer()
	return nil
}

// CallStatus reports what is known about callID without consuming the
// mailbox: the outcome if it is still held, pending if it is the active
// call, unknown otherwise.
func (m *Manager) CallStatus(callID string) Status {
	if r, ok := m.mailbox.Peek(callID); ok {
		return Status(r.Outcome)
	}
	if s, ok := m.Active(); ok && s.id == callID {
		return StatusPending
	}
	return StatusUnknown
}

// Shutdown leaves the active call unresolved; it stops the ringtone and withdraws any
// pending prompt so the process can exit cleanly.
func (m *Manager) Shutdown() {
	s, ok := m.Active()
	if !ok {
		return
	}
	slog.Info("shutting down with active call", "call_id", s.id, "state", s.State().String())
	s.mu.Lock()
	s.ringGen++
	s.authGen++
	s.ringTimer.Cancel()
	s.authTimer.Cancel()
	pending := s.pendingAuth
	s.pendingAuth = nil
	s.mu.Unlock()
	pending.Cancel()
	s.cancel()
	if err := m.deps.Audio.Stop(); err != nil {
		slog.Warn("ringtone stop failed", "error", err)
	}
	s.dismiss()
}
