package callsession

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ent0n29/callgate/internal/authgate"
	"github.com/ent0n29/callgate/internal/clock"
	"github.com/ent0n29/callgate/internal/delivery"
	"github.com/ent0n29/callgate/internal/oneshot"
	"github.com/ent0n29/callgate/internal/policy"
)

// Session is one incoming call. All transitions go through mu; collaborator
// calls that may block or re-enter run after it is released.
type Session struct {
	id           string
	caller       string
	ringDuration time.Duration

	cfg   Config
	deps  Deps
	hooks Hooks
	clock clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	ringTimer *oneshot.Timer
	authTimer *oneshot.Timer

	mu            sync.Mutex
	state         State
	resolution    *Resolution
	startedAt     time.Time
	ringGen       uint64
	authGen       uint64
	pendingAuth   *authgate.Pending
	authStartedAt time.Time
	authAttempts  int
	audioPaused   bool
	onResolve     func(*Session, Resolution)
}

func newSession(req StartRequest, cfg Config, deps Deps, hooks Hooks) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           req.CallID,
		caller:       req.Caller,
		ringDuration: time.Duration(req.RingDurationSeconds) * time.Second,
		cfg:          cfg,
		deps:         deps,
		hooks:        hooks,
		clock:        cfg.Clock,
		ctx:          ctx,
		cancel:       cancel,
		ringTimer:    oneshot.NewTimer(cfg.Clock),
		authTimer:    oneshot.NewTimer(cfg.Clock),
		state:        StateIdle,
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Caller() string { return s.caller }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolution returns the outcome once the session is terminal.
func (s *Session) Resolution() (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolution == nil {
		return Resolution{}, false
	}
	return s.resolution.clone(), true
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		CallID:         s.id,
		Caller:         s.caller,
		State:          s.state,
		RingDurationMS: s.ringDuration.Milliseconds(),
		AuthAttempts:   s.authAttempts,
		StartedAt:      s.startedAt,
	}
	if !s.state.Terminal() {
		snap.RemainingMS = s.ringTimer.Remaining().Milliseconds()
	}
	if s.resolution != nil {
		r := s.resolution.clone()
		snap.Resolution = &r
	}
	return snap
}

// start moves Idle to Ringing: arms the ring timer, starts the ringtone and
// shows the call.
func (s *Session) start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateRinging
	s.startedAt = s.clock.Now().UTC()
	s.armRingLocked(s.ringDuration)
	if err := s.deps.Audio.Start(); err != nil {
		slog.Warn("ringtone unavailable", "call_id", s.id, "error", err)
	}
	s.mu.Unlock()

	slog.Info("call ringing", "call_id", s.id, "caller", policy.LogCaller(s.caller), "ring_duration", s.ringDuration)
	if s.hooks.OnStart != nil {
		s.hooks.OnStart(s.id)
	}

	actions := Actions{
		Decline:       func() { s.Decline() },
		RequestAnswer: func() { s.RequestAnswer() },
	}
	if err := s.deps.Presenter.ShowCall(ctx, Incoming{ID: s.id, Caller: s.caller, RingDuration: s.ringDuration}, actions); err != nil {
		slog.Warn("call presentation unavailable", "call_id", s.id, "error", err)
	}
	// A very short ring can resolve before ShowCall returns; make sure the
	// prompt does not outlive the call.
	if s.State().Terminal() {
		s.dismiss()
	}
}

func (s *Session) armRingLocked(d time.Duration) {
	s.ringGen++
	gen := s.ringGen
	s.ringTimer.Start(d, func() { s.ringExpired(gen) })
}

// Decline resolves a ringing call as Declined. It reports false when the
// event was ignored.
func (s *Session) Decline() bool {
	s.mu.Lock()
	if s.state != StateRinging {
		state := s.state
		s.mu.Unlock()
		s.dropped("decline", "state "+state.String())
		return false
	}
	s.ringGen++
	s.ringTimer.Cancel()
	after := s.resolveLocked(OutcomeDeclined, delivery.ActionDecline)
	s.mu.Unlock()
	after()
	return true
}

// RequestAnswer moves a ringing call to Authenticating and asks the auth
// gate for a credential check. The ring timer is paused, not reset.
func (s *Session) RequestAnswer() bool {
	s.mu.Lock()
	if s.state != StateRinging {
		state := s.state
		s.mu.Unlock()
		s.dropped("request_answer", "state "+state.String())
		return false
	}
	s.ringGen++
	s.ringTimer.Cancel()
	s.state = StateAuthenticating
	s.authGen++
	gen := s.authGen
	s.authAttempts++
	s.authStartedAt = s.clock.Now()
	s.authTimer.Start(s.ringTimer.Remaining()+s.cfg.AuthGrace, func() { s.authExpired(gen) })
	if s.cfg.AudioDuringAuth == AudioPause {
		if err := s.deps.Audio.Stop(); err != nil {
			slog.Warn("ringtone stop failed", "call_id", s.id, "error", err)
		}
		s.audioPaused = true
	}
	attempt := s.authAttempts
	s.mu.Unlock()

	slog.Info("call answer requested", "call_id", s.id, "attempt", attempt)
	p := s.deps.Auth.Request(s.ctx, authgate.Request{
		CallID:      s.id,
		Title:       s.cfg.AuthTitle,
		Description: s.cfg.AuthDescription,
	}, func(o authgate.Outcome) { s.authOutcome(gen, o) })

	s.mu.Lock()
	if s.authGen == gen && s.state == StateAuthenticating {
		s.pendingAuth = p
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	// The outcome already arrived or the session ended; Cancel is a no-op
	// in the first case and withdraws the prompt in the second.
	p.Cancel()
	return true
}

func (s *Session) ringExpired(gen uint64) {
	s.mu.Lock()
	if gen != s.ringGen || s.state != StateRinging {
		state := s.state
		s.mu.Unlock()
		s.dropped("ring_expired", "stale timer in state "+state.String())
		return
	}
	after := s.resolveLocked(OutcomeMissed, "")
	s.mu.Unlock()
	slog.Info("call rang out", "call_id", s.id)
	after()
}

// authExpired withdraws a prompt nobody answered and treats it as
// cancelled. By then the ring deadline has passed, so the call is missed.
func (s *Session) authExpired(gen uint64) {
	s.mu.Lock()
	if gen != s.authGen || s.state != StateAuthenticating {
		state := s.state
		s.mu.Unlock()
		s.dropped("auth_expired", "stale bound in state "+state.String())
		return
	}
	pending := s.pendingAuth
	s.mu.Unlock()

	slog.Warn("authentication unanswered; withdrawing prompt", "call_id", s.id)
	pending.Cancel()
	s.authOutcome(gen, authgate.Cancelled)
}

func (s *Session) authOutcome(gen uint64, o authgate.Outcome) {
	s.mu.Lock()
	if gen != s.authGen || s.state != StateAuthenticating {
		state := s.state
		s.mu.Unlock()
		s.dropped("auth_"+string(o), "stale outcome in state "+state.String())
		return
	}
	s.authTimer.Cancel()
	s.pendingAuth = nil
	took := s.clock.Now().Sub(s.authStartedAt)

	after := func() {}
	switch o {
	case authgate.Succeeded:
		after = s.resolveLocked(OutcomeAnswered, delivery.ActionAnswer)
	case authgate.Failed:
		after = s.resolveLocked(OutcomeAuthFailed, "")
	default:
		remaining := s.ringTimer.Remaining()
		if remaining <= 0 {
			after = s.resolveLocked(OutcomeMissed, "")
			break
		}
		s.state = StateRinging
		s.armRingLocked(remaining)
		if s.audioPaused {
			s.audioPaused = false
			if err := s.deps.Audio.Start(); err != nil {
				slog.Warn("ringtone resume failed", "call_id", s.id, "error", err)
			}
		}
		slog.Info("authentication cancelled; ringing resumed", "call_id", s.id, "remaining", remaining)
	}
	s.mu.Unlock()

	if s.hooks.OnAuth != nil {
		s.hooks.OnAuth(s.id, o, took)
	}
	after()
}

// resolveLocked records the write-once resolution and performs the
// side effects that must happen before any other session can start. The
// returned func runs the rest and must be called after mu is released.
func (s *Session) resolveLocked(outcome Outcome, action delivery.ActionName) func() {
	if s.resolution != nil {
		slog.Error("resolution already set", "call_id", s.id, "existing", string(s.resolution.Outcome), "attempted", string(outcome), "error", ErrResolutionSet)
		return func() {}
	}
	now := s.clock.Now().UTC()
	r := Resolution{
		CallID:     s.id,
		Outcome:    outcome,
		ResolvedAt: now,
		Metadata: map[string]string{
			"caller":                s.caller,
			"ring_duration_seconds": strconv.Itoa(int(s.ringDuration / time.Second)),
			"auth_attempts":         strconv.Itoa(s.authAttempts),
		},
	}
	s.resolution = &r
	s.state = outcome.state()
	ringing := now.Sub(s.startedAt)

	s.ringTimer.Cancel()
	s.authTimer.Cancel()
	if err := s.deps.Audio.Stop(); err != nil {
		slog.Warn("ringtone stop failed", "call_id", s.id, "error", err)
	}
	s.audioPaused = false
	pending := s.pendingAuth
	s.pendingAuth = nil

	if s.onResolve != nil {
		s.onResolve(s, r.clone())
	}

	return func() {
		slog.Info("call resolved", "call_id", s.id, "outcome", string(outcome))
		s.cancel()
		if pending != nil {
			pending.Cancel()
		}
		s.dismiss()
		if action != "" {
			delivery.Dispatch(s.deps.Deliverer, delivery.Action{Name: action, CallID: s.id, At: now}, s.cfg.DeliveryTimeout, s.hooks.OnDeliveryError)
		}
		if s.hooks.OnResolve != nil {
			s.hooks.OnResolve(r.clone(), ringing)
		}
	}
}

func (s *Session) dismiss() {
	if err := s.deps.Presenter.Dismiss(context.Background(), s.id); err != nil {
		slog.Debug("call dismiss not delivered", "call_id", s.id, "error", err)
	}
}

func (s *Session) dropped(event, reason string) {
	slog.Debug("call event ignored", "call_id", s.id, "event", event, "reason", reason)
	if s.hooks.OnDrop != nil {
		s.hooks.OnDrop(s.id, event, reason)
	}
}
