// Command callctl drives a running callgate from the terminal: it starts
// calls, reads results and can stand in for a presentation client.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/callgate/internal/protocol"
)

type options struct {
	baseURL     string
	command     string
	callID      string
	caller      string
	ringSeconds int
	clientID    string
	deviceLock  bool
	autoAction  string
	authOutcome string
	authDelay   time.Duration
	timeout     time.Duration
	verbose     bool
}

type startCallRequest struct {
	CallID              string `json:"call_id"`
	Caller              string `json:"caller,omitempty"`
	RingDurationSeconds int    `json:"ring_duration_seconds"`
}

type wsEnvelope struct {
	Type        string `json:"type"`
	CallID      string `json:"call_id,omitempty"`
	Caller      string `json:"caller,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	Action      string `json:"action,omitempty"`
	Route       string `json:"route,omitempty"`
	Code        string `json:"code,omitempty"`
	Detail      string `json:"detail,omitempty"`
	RingMS      int64  `json:"ring_duration_ms,omitempty"`
	RequireAuth bool   `json:"requires_device_auth,omitempty"`
}

var commands = map[string]bool{
	"start":        true,
	"status":       true,
	"result":       true,
	"active":       true,
	"answer":       true,
	"decline":      true,
	"cancel-audio": true,
	"ringtone":     true,
	"watch":        true,
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "callctl: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "callctl: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var authDelayMS int
	var timeoutMS int

	fs := flag.NewFlagSet("callctl", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "callgate base URL")
	fs.StringVar(&cfg.callID, "call-id", "", "call id for start/status/answer/decline")
	fs.StringVar(&cfg.caller, "caller", "", "caller display name for start")
	fs.IntVar(&cfg.ringSeconds, "ring-seconds", 30, "ring duration in seconds for start")
	fs.StringVar(&cfg.clientID, "client-id", "callctl", "presentation client id for watch")
	fs.BoolVar(&cfg.deviceLock, "device-lock", true, "watch: advertise a device lock")
	fs.StringVar(&cfg.autoAction, "auto", "", "watch: tap answer or decline when a call shows")
	fs.StringVar(&cfg.authOutcome, "auth", "succeeded", "watch: outcome reported for unlock prompts (succeeded|failed|cancelled)")
	fs.IntVar(&authDelayMS, "auth-delay-ms", 300, "watch: delay before reporting the unlock outcome")
	fs.IntVar(&timeoutMS, "timeout-ms", 60000, "overall timeout in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if fs.NArg() != 1 {
		return options{}, fmt.Errorf("expected exactly one command, got %d", fs.NArg())
	}
	cfg.command = strings.ToLower(strings.TrimSpace(fs.Arg(0)))
	if !commands[cfg.command] {
		return options{}, fmt.Errorf("unknown command %q", cfg.command)
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	cfg.callID = strings.TrimSpace(cfg.callID)
	switch cfg.command {
	case "start", "status", "answer", "decline":
		if cfg.callID == "" {
			return options{}, fmt.Errorf("%s requires -call-id", cfg.command)
		}
	}
	if cfg.command == "start" && cfg.ringSeconds <= 0 {
		return options{}, fmt.Errorf("ring-seconds must be > 0")
	}

	cfg.autoAction = strings.ToLower(strings.TrimSpace(cfg.autoAction))
	switch cfg.autoAction {
	case "", protocol.ActionAnswer, protocol.ActionDecline:
	default:
		return options{}, fmt.Errorf("auto must be answer or decline")
	}
	cfg.authOutcome = strings.ToLower(strings.TrimSpace(cfg.authOutcome))
	switch cfg.authOutcome {
	case "succeeded", "failed", "cancelled":
	default:
		return options{}, fmt.Errorf("auth must be succeeded, failed or cancelled")
	}

	if authDelayMS < 0 {
		authDelayMS = 0
	}
	if timeoutMS < 1000 {
		timeoutMS = 1000
	}
	cfg.authDelay = time.Duration(authDelayMS) * time.Millisecond
	cfg.timeout = time.Duration(timeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	client := &http.Client{Timeout: 15 * time.Second}
	id := url.PathEscape(cfg.callID)
	switch cfg.command {
	case "start":
		payload, err := json.Marshal(startCallRequest{CallID: cfg.callID, Caller: cfg.caller, RingDurationSeconds: cfg.ringSeconds})
		if err != nil {
			return err
		}
		return doPrint(ctx, client, http.MethodPost, cfg.baseURL+"/v1/calls", payload, http.StatusCreated)
	case "status":
		return doPrint(ctx, client, http.MethodGet, cfg.baseURL+"/v1/calls/"+id+"/status", nil, http.StatusOK)
	case "result":
		return doPrint(ctx, client, http.MethodGet, cfg.baseURL+"/v1/calls/last-result", nil, http.StatusOK, http.StatusNoContent)
	case "active":
		return doPrint(ctx, client, http.MethodGet, cfg.baseURL+"/v1/calls/active", nil, http.StatusOK, http.StatusNoContent)
	case "answer":
		return doPrint(ctx, client, http.MethodPost, cfg.baseURL+"/v1/calls/"+id+"/answer", nil, http.StatusAccepted)
	case "decline":
		return doPrint(ctx, client, http.MethodPost, cfg.baseURL+"/v1/calls/"+id+"/decline", nil, http.StatusAccepted)
	case "cancel-audio":
		return doPrint(ctx, client, http.MethodPost, cfg.baseURL+"/v1/audio/cancel", nil, http.StatusNoContent)
	case "ringtone":
		return inspectRingtone(ctx, client, cfg.baseURL)
	case "watch":
		return watch(ctx, cfg)
	}
	return fmt.Errorf("unknown command %q", cfg.command)
}

func doPrint(ctx context.Context, client *http.Client, method, target string, payload []byte, okStatus ...int) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	out, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	for _, code := range okStatus {
		if res.StatusCode == code {
			if text := strings.TrimSpace(string(out)); text != "" {
				fmt.Println(text)
			} else {
				fmt.Printf("HTTP %d\n", res.StatusCode)
			}
			return nil
		}
	}
	return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(out)))
}

func inspectRingtone(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/audio/ringtone.wav", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	pcm, sampleRate, err := decodeWAVPCM16(data)
	if err != nil {
		return fmt.Errorf("decode ringtone: %w", err)
	}
	dur := time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
	fmt.Printf("ringtone: sample_rate=%dHz duration=%s bytes=%d\n", sampleRate, dur, len(data))
	return nil
}

func wsURL(baseURL, clientID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/presentation/ws"
	q := u.Query()
	if clientID != "" {
		q.Set("client_id", clientID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// watch acts as a presentation client until the watched call is dismissed
// or the timeout expires.
func watch(ctx context.Context, cfg options) error {
	target, err := wsURL(cfg.baseURL, cfg.clientID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	hello := protocol.Hello{
		Type:         protocol.TypeHello,
		ClientID:     cfg.clientID,
		Capabilities: protocol.Capabilities{DeviceLock: cfg.deviceLock, Audio: true, FullScreen: true},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("timeout after %s", cfg.timeout)
			}
			return fmt.Errorf("ws read: %w", err)
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if cfg.verbose {
			fmt.Println(describe(env))
		}
		reply, done := react(cfg, env)
		if reply != nil {
			if env.Type == string(protocol.TypeAuthPrompt) && cfg.authDelay > 0 {
				time.Sleep(cfg.authDelay)
			}
			if err := conn.WriteJSON(reply); err != nil {
				return fmt.Errorf("send %s: %w", env.Type, err)
			}
		}
		if done {
			return nil
		}
	}
}

// react decides the reply to a server message and whether watching is over.
func react(cfg options, env wsEnvelope) (any, bool) {
	switch env.Type {
	case string(protocol.TypeShowCall):
		if cfg.callID != "" && env.CallID != cfg.callID {
			return nil, false
		}
		if cfg.autoAction == "" {
			return nil, false
		}
		return protocol.CallAction{Type: protocol.TypeCallAction, CallID: env.CallID, Action: cfg.autoAction}, false
	case string(protocol.TypeAuthPrompt):
		return protocol.AuthResult{Type: protocol.TypeAuthResult, RequestID: env.RequestID, Outcome: cfg.authOutcome}, false
	case string(protocol.TypeDismissCall):
		return nil, cfg.callID == "" || env.CallID == cfg.callID
	}
	return nil, false
}

func describe(env wsEnvelope) string {
	switch env.Type {
	case string(protocol.TypeShowCall):
		return fmt.Sprintf("callctl: show_call call=%s caller=%q ring_ms=%d requires_auth=%v", env.CallID, env.Caller, env.RingMS, env.RequireAuth)
	case string(protocol.TypeDismissCall):
		return fmt.Sprintf("callctl: dismiss_call call=%s", env.CallID)
	case string(protocol.TypeRingtone):
		return fmt.Sprintf("callctl: ringtone %s", env.Action)
	case string(protocol.TypeAudioRoute):
		return fmt.Sprintf("callctl: audio_route %s", env.Route)
	case string(protocol.TypeAuthPrompt):
		return fmt.Sprintf("callctl: auth_prompt request=%s call=%s", env.RequestID, env.CallID)
	case string(protocol.TypeAuthDismiss):
		return fmt.Sprintf("callctl: auth_dismiss request=%s", env.RequestID)
	case string(protocol.TypeErrorEvent):
		return fmt.Sprintf("callctl: error_event code=%s detail=%s", env.Code, env.Detail)
	}
	return "callctl: " + env.Type
}

func decodeWAVPCM16(data []byte) ([]byte, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("wav too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("unsupported wav header")
	}

	var (
		haveFmt     bool
		audioFormat uint16
		channels    uint16
		sampleRate  int
		bitsPerSamp uint16
		pcmData     []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, 0, fmt.Errorf("invalid wav chunk size")
		}
		chunk := data[off : off+size]
		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, 0, fmt.Errorf("invalid wav fmt chunk")
			}
			audioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			bitsPerSamp = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			pcmData = chunk
		}
		off += size
		if size%2 == 1 {
			off++
		}
	}
	switch {
	case !haveFmt:
		return nil, 0, fmt.Errorf("wav fmt chunk missing")
	case len(pcmData) == 0:
		return nil, 0, fmt.Errorf("wav data chunk missing")
	case audioFormat != 1:
		return nil, 0, fmt.Errorf("unsupported wav audio format %d", audioFormat)
	case bitsPerSamp != 16:
		return nil, 0, fmt.Errorf("unsupported wav bits_per_sample %d", bitsPerSamp)
	case channels != 1:
		return nil, 0, fmt.Errorf("ringtone must be mono, got %d channels", channels)
	case sampleRate <= 0:
		return nil, 0, fmt.Errorf("invalid wav sample rate %d", sampleRate)
	}
	if len(pcmData)%2 != 0 {
		pcmData = pcmData[:len(pcmData)-1]
	}
	return pcmData, sampleRate, nil
}
