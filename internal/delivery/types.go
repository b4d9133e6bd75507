package delivery

import (
	"context"
	"errors"
	"time"
)

var ErrUndeliverable = errors.New("action undeliverable")

// ActionName is the intent handed back to the host application.
type ActionName string

const (
	ActionAnswer  ActionName = "Answer"
	ActionDecline ActionName = "Decline"
)

// Action is a fire-and-forget notice that the user answered or declined.
type Action struct {
	Name   ActionName `json:"callNotificationResult"`
	CallID string     `json:"callId"`
	At     time.Time  `json:"at"`
}

// Deliverer hands actions to the host. Failures are reported to the caller
// but never affect the call outcome.
type Deliverer interface {
	Deliver(ctx context.Context, a Action) error
	Close() error
}
