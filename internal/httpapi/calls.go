package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/callgate/internal/audio"
	"github.com/ent0n29/callgate/internal/callsession"
)

func (s *Server) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req callsession.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess, err := s.calls.StartCall(r.Context(), req)
	switch {
	case errors.Is(err, callsession.ErrAlreadyActive):
		respondError(w, http.StatusConflict, "already_active", err.Error())
		return
	case errors.Is(err, callsession.ErrInvalidCall):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleActiveCall(w http.ResponseWriter, _ *http.Request) {
	sess, ok := s.calls.Active()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleLastResult(w http.ResponseWriter, _ *http.Request) {
	res, ok := s.calls.QueryLastResult()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, map[string]string{
		"call_id": id,
		"status":  string(s.calls.CallStatus(id)),
	})
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.forwardAction(w, r, s.calls.Decline)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	s.forwardAction(w, r, s.calls.RequestAnswer)
}

// forwardAction hands a user tap to the session. Whether it changed state
// is visible through the status and last-result endpoints.
func (s *Server) forwardAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := action(id); err != nil {
		if errors.Is(err, callsession.ErrNoActiveSession) {
			respondError(w, http.StatusNotFound, "no_active_session", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"call_id": id, "accepted": true})
}

func (s *Server) handleCancelAudio(w http.ResponseWriter, _ *http.Request) {
	if err := s.calls.CancelActiveAudio(); err != nil {
		respondError(w, http.StatusInternalServerError, "audio_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type routeRequest struct {
	Route audio.Route `json:"route"`
}

func (s *Server) handleGetRoute(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"route":   s.audio.Route(),
		"routes":  s.audio.Routes(),
		"playing": s.audio.Playing(),
	})
}

func (s *Server) handleSetRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.audio.SetRoute(req.Route); err != nil {
		if errors.Is(err, audio.ErrUnknownRoute) {
			respondError(w, http.StatusBadRequest, "invalid_route", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "audio_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"route": s.audio.Route()})
}

func (s *Server) handleRingtone(w http.ResponseWriter, _ *http.Request) {
	if len(s.ringtone) == 0 {
		respondError(w, http.StatusServiceUnavailable, "ringtone_unavailable", "ringtone not synthesized")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.ringtone)
}
