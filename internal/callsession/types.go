package callsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/callgate/internal/authgate"
	"github.com/ent0n29/callgate/internal/clock"
	"github.com/ent0n29/callgate/internal/delivery"
)

var (
	ErrAlreadyActive   = errors.New("a call is already active")
	ErrNoActiveSession = errors.New("no active call session")
	ErrInvalidCall     = errors.New("invalid call")
	ErrResolutionSet   = errors.New("call resolution already set")
)

type State int

const (
	StateIdle State = iota
	StateRinging
	StateAuthenticating
	StateAnswered
	StateDeclined
	StateMissed
	StateAuthFailed
)

func (s State) String() string {
	names := []string{"idle", "ringing", "authenticating", "answered", "declined", "missed", "auth_failed"}
	if int(s) >= 0 && int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) Terminal() bool {
	switch s {
	case StateAnswered, StateDeclined, StateMissed, StateAuthFailed:
		return true
	default:
		return false
	}
}

type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeDeclined   Outcome = "declined"
	OutcomeMissed     Outcome = "missed"
	OutcomeAuthFailed Outcome = "auth_failed"
)

func (o Outcome) state() State {
	switch o {
	case OutcomeAnswered:
		return StateAnswered
	case OutcomeDeclined:
		return StateDeclined
	case OutcomeMissed:
		return StateMissed
	case OutcomeAuthFailed:
		return StateAuthFailed
	default:
		return StateIdle
	}
}

// Resolution is the write-once outcome of a call, as handed to the host.
type Resolution struct {
	CallID     string            `json:"call_id"`
	Outcome    Outcome           `json:"outcome"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ResolvedAt time.Time         `json:"resolved_at"`
}

func (r Resolution) clone() Resolution {
	out := r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Status answers "what happened to call X" without consuming the mailbox.
type Status string

const (
	StatusPending Status = "pending"
	StatusUnknown Status = "unknown"
)

// StartRequest is the host's startCall payload.
type StartRequest struct {
	CallID              string `json:"call_id"`
	Caller              string `json:"caller"`
	RingDurationSeconds int    `json:"ring_duration_seconds"`
}

func (r StartRequest) validate(max time.Duration) error {
	if r.CallID == "" {
		return fmt.Errorf("%w: call_id is required", ErrInvalidCall)
	}
	if r.RingDurationSeconds <= 0 {
		return fmt.Errorf("%w: ring_duration_seconds must be positive", ErrInvalidCall)
	}
	if max > 0 && time.Duration(r.RingDurationSeconds)*time.Second > max {
		return fmt.Errorf("%w: ring_duration_seconds exceeds %s", ErrInvalidCall, max)
	}
	return nil
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	CallID         string      `json:"call_id"`
	Caller         string      `json:"caller"`
	State          State       `json:"state"`
	RingDurationMS int64       `json:"ring_duration_ms"`
	RemainingMS    int64       `json:"remaining_ms"`
	AuthAttempts   int         `json:"auth_attempts"`
	StartedAt      time.Time   `json:"started_at"`
	Resolution     *Resolution `json:"resolution,omitempty"`
}

// Incoming is what the presentation layer needs to render a call.
type Incoming struct {
	ID           string
	Caller       string
	RingDuration time.Duration
}

// Actions are the user-facing entry points handed to the presentation layer.
type Actions struct {
	Decline       func()
	RequestAnswer func()
}

type Presenter interface {
	ShowCall(ctx context.Context, call Incoming, actions Actions) error
	Dismiss(ctx context.Context, callID string) error
}

type Audio interface {
	Start() error
	Stop() error
}

type Authenticator interface {
	Request(ctx context.Context, req authgate.Request, onOutcome func(authgate.Outcome)) *authgate.Pending
}

// AudioPolicy decides what the ringtone does while the user authenticates.
type AudioPolicy string

const (
	AudioContinue AudioPolicy = "continue"
	AudioPause    AudioPolicy = "pause"
)

type Config struct {
	Clock           clock.Clock
	AudioDuringAuth AudioPolicy
	AuthTitle       string
	AuthDescription string
	MaxRingDuration time.Duration
	DeliveryTimeout time.Duration
	// AuthGrace bounds Authenticating at the remaining ring time plus this
	// much, so an unanswered prompt cannot hold the call slot forever.
	AuthGrace time.Duration
}

type Deps struct {
	Presenter Presenter
	Audio     Audio
	Auth      Authenticator
	Deliverer delivery.Deliverer
}

// Hooks let the host observe sessions. All are optional and run outside
// session locks.
type Hooks struct {
	OnStart         func(callID string)
	OnResolve       func(r Resolution, ringing time.Duration)
	OnAuth          func(callID string, o authgate.Outcome, took time.Duration)
	OnDrop          func(callID, event, reason string)
	OnDeliveryError func(err error)
}

type noopPresenter struct{}

func (noopPresenter) ShowCall(context.Context, Incoming, Actions) error { return nil }
func (noopPresenter) Dismiss(context.Context, string) error            { return nil }
