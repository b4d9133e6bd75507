package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	// client -> server
	TypeHello      MessageType = "hello"
	TypeCallAction MessageType = "call_action"
	TypeAuthResult MessageType = "auth_result"

	// server -> client
	TypeShowCall    MessageType = "show_call"
	TypeDismissCall MessageType = "dismiss_call"
	TypeRingtone    MessageType = "ringtone"
	TypeAudioRoute  MessageType = "audio_route"
	TypeAuthPrompt  MessageType = "auth_prompt"
	TypeAuthDismiss MessageType = "auth_dismiss"
	TypeErrorEvent  MessageType = "error_event"
)

const (
	ActionAnswer  = "answer"
	ActionDecline = "decline"

	RingtonePlay = "play"
	RingtoneStop = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Capabilities is what a presentation client can do on its device.
type Capabilities struct {
	DeviceLock bool `json:"device_lock"`
	Audio      bool `json:"audio"`
	FullScreen bool `json:"full_screen"`
}

type Hello struct {
	Type         MessageType  `json:"type"`
	ClientID     string       `json:"client_id,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

type CallAction struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
	Action string      `json:"action"`
}

type AuthResult struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	Outcome   string      `json:"outcome"`
}

type ShowCall struct {
	Type               MessageType `json:"type"`
	CallID             string      `json:"call_id"`
	Caller             string      `json:"caller"`
	RingDurationMS     int64       `json:"ring_duration_ms"`
	FullScreen         bool        `json:"full_screen"`
	RingtoneURL        string      `json:"ringtone_url,omitempty"`
	RequiresDeviceAuth bool        `json:"requires_device_auth"`
}

type DismissCall struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"call_id"`
}

type Ringtone struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	URL    string      `json:"url,omitempty"`
}

type AudioRoute struct {
	Type  MessageType `json:"type"`
	Route string      `json:"route"`
}

type AuthPrompt struct {
	Type        MessageType `json:"type"`
	RequestID   string      `json:"request_id"`
	CallID      string      `json:"call_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
}

type AuthDismiss struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeHello:
		var msg Hello
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeCallAction:
		var msg CallAction
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.CallID == "" || (msg.Action != ActionAnswer && msg.Action != ActionDecline) {
			return nil, errors.New("invalid call_action")
		}
		return msg, nil
	case TypeAuthResult:
		var msg AuthResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RequestID == "" || msg.Outcome == "" {
			return nil, errors.New("invalid auth_result")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the type tag of a known message value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case Hello:
		return m.Type, true
	case CallAction:
		return m.Type, true
	case AuthResult:
		return m.Type, true
	case ShowCall:
		return m.Type, true
	case DismissCall:
		return m.Type, true
	case Ringtone:
		return m.Type, true
	case AudioRoute:
		return m.Type, true
	case AuthPrompt:
		return m.Type, true
	case AuthDismiss:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
