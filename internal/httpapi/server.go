package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ent0n29/callgate/internal/audio"
	"github.com/ent0n29/callgate/internal/callsession"
	"github.com/ent0n29/callgate/internal/config"
	"github.com/ent0n29/callgate/internal/observability"
	"github.com/ent0n29/callgate/internal/presentation"
)

const RingtonePath = "/v1/audio/ringtone.wav"

type Server struct {
	cfg      config.Config
	calls    *callsession.Manager
	hub      *presentation.Hub
	audio    *audio.Resource
	metrics  *observability.Metrics
	limiter  *IPRateLimiter
	ringtone []byte
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, calls *callsession.Manager, hub *presentation.Hub, res *audio.Resource, metrics *observability.Metrics) *Server {
	cadence := audio.DefaultCadence()
	if len(cfg.RingtoneToneHz) > 0 {
		cadence.FrequenciesHz = cfg.RingtoneToneHz
	}
	ringtone, err := audio.RingtoneWAV(cadence)
	if err != nil {
		slog.Warn("ringtone synthesis failed", "error", err)
	}
	rateLimit, burst := rate.Limit(cfg.RateLimit), cfg.RateBurst
	if cfg.RateLimit <= 0 || burst <= 0 {
		rateLimit, burst = rate.Limit(20), 40
	}

	return &Server{
		cfg:      cfg,
		calls:    calls,
		hub:      hub,
		audio:    res,
		metrics:  metrics,
		limiter:  NewIPRateLimiter(RateLimitConfig{Rate: rateLimit, Burst: burst}),
		ringtone: ringtone,
		static:   newPresentationPage(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the call screen.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/presentation/ws", s.handlePresentationWS)
	r.Get(RingtonePath, s.handleRingtone)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.limiter))

		r.Post("/v1/calls", s.handleStartCall)
		r.Get("/v1/calls/active", s.handleActiveCall)
		r.Get("/v1/calls/last-result", s.handleLastResult)
		r.Get("/v1/calls/{id}/status", s.handleCallStatus)
		r.Post("/v1/calls/{id}/decline", s.handleDecline)
		r.Post("/v1/calls/{id}/answer", s.handleAnswer)

		r.Post("/v1/audio/cancel", s.handleCancelAudio)
		r.Get("/v1/audio/route", s.handleGetRoute)
		r.Put("/v1/audio/route", s.handleSetRoute)

		r.Get("/v1/perf/latency", s.handlePerfLatency)
	})

	return r
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_, active := s.calls.Active()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"active_call":          active,
		"presentation_clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":               "ready",
		"presentation_clients": s.hub.ClientCount(),
		"auth_provider":        s.cfg.AuthProvider,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
