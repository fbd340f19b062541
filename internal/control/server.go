// Package control exposes the daemon's localhost HTTP surface: session
// status and commands for the CLI and the host application, plus an SSE
// stream of engine transitions.
package control

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/beacon/internal/engine"
	"github.com/alfredjeanlab/beacon/internal/lifecycle"
	"github.com/alfredjeanlab/beacon/internal/model"
	"github.com/alfredjeanlab/beacon/internal/store"
)

// FixSink receives host-reported position fixes. Implemented by the sampler's
// latest-fix source; nil when the daemon reads fixes from a file instead.
type FixSink interface {
	Set(fix model.PositionFix)
}

// Server handles the control API for one engine.
type Server struct {
	engine   *engine.Engine
	store    store.Store
	observer *lifecycle.Observer
	logger   *slog.Logger
	hub      *sseHub
	fixSink  FixSink
}

// SetFixSink enables POST /v1/fix to feed host-reported fixes into the
// sampler.
func (s *Server) SetFixSink(sink FixSink) {
	s.fixSink = sink
}

// NewServer wires the control surface to the engine. It installs itself as
// the engine's transition hook so SSE consumers see every state change.
func NewServer(eng *engine.Engine, st store.Store, obs *lifecycle.Observer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   eng,
		store:    st,
		observer: obs,
		logger:   logger,
		hub:      newSSEHub(),
	}
	eng.OnTransition = s.broadcastTransition
	eng.SetNotifier(s)
	return s
}

// TerminationNotice implements engine.Notifier: the exactly-once user-facing
// notice is logged and streamed to control clients.
func (s *Server) TerminationNotice(identity string, reason model.TerminationReason) {
	s.logger.Info("emergency session ended", "identity", identity, "reason", reason)
	s.hub.broadcast("notice", map[string]any{
		"identity": identity,
		"reason":   reason,
	})
}

func (s *Server) broadcastTransition(sess model.Session) {
	s.hub.broadcast("transition", sess)
}

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/activate", s.handleActivate)
	mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("POST /v1/lifecycle", s.handleLifecycle)
	mux.HandleFunc("POST /v1/fix", s.handleFix)
	mux.HandleFunc("POST /v1/login", s.handleLogin)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return authMiddleware(authToken, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusBody(s.engine))
}

func statusBody(eng *engine.Engine) map[string]any {
	sess := eng.Snapshot()
	return map[string]any{
		"identity": eng.Identity(),
		"session":  sess,
	}
}

// ActivateRequest is the control-API activation payload. CapturedAt defaults
// to the request time when omitted, for callers that sample on demand.
type ActivateRequest struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Accuracy   float64    `json:"accuracy"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	fix := model.PositionFix{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if req.CapturedAt != nil {
		fix.CapturedAt = *req.CapturedAt
	} else {
		fix.CapturedAt = time.Now()
	}

	if err := s.engine.Activate(r.Context(), fix); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody(s.engine))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody(s.engine))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity := s.engine.Identity()
	if identity == "" {
		writeError(w, http.StatusConflict, "no identity configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := s.store.ListSessions(r.Context(), identity, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State lifecycle.State `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !req.State.Valid() {
		writeError(w, http.StatusBadRequest, "state must be foreground or background")
		return
	}
	s.observer.Report(req.State)
	writeJSON(w, http.StatusOK, map[string]any{"state": req.State})
}

// handleFix accepts a fresh position fix from the host application. Fixes
// flow into the sampler's source so the next heartbeat carries them.
func (s *Server) handleFix(w http.ResponseWriter, r *http.Request) {
	if s.fixSink == nil {
		writeError(w, http.StatusConflict, "fix reporting disabled: fixes are read from a file")
		return
	}
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	fix := model.PositionFix{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
	}
	if req.CapturedAt != nil {
		fix.CapturedAt = *req.CapturedAt
	} else {
		fix.CapturedAt = time.Now()
	}
	if err := fix.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.fixSink.Set(fix)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity   string `json:"identity"`
		Credential string `json:"credential,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}
	if err := s.engine.SetIdentity(r.Context(), req.Identity); err != nil {
		writeEngineError(w, err)
		return
	}
	if req.Credential != "" {
		if err := s.store.SetSetting(r.Context(), model.SettingCredential, req.Credential); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": req.Identity})
}

// writeEngineError maps engine taxonomy errors onto HTTP status codes with
// actionable messages.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrAlreadyActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNoIdentity):
		writeError(w, http.StatusConflict, "log in before activating")
	case errors.Is(err, engine.ErrStaleFix), errors.Is(err, engine.ErrLocationUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "could not use the supplied location; retry with a fresh fix")
	case errors.Is(err, engine.ErrPermissionDenied):
		writeError(w, http.StatusUnprocessableEntity, "enable location access and retry")
	case errors.Is(err, engine.ErrRemoteConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrNetworkUnreachable), errors.Is(err, engine.ErrAmbiguousStatus):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// authMiddleware wraps an http.Handler and checks the Authorization header
// for a valid Bearer token. When token is empty, auth is disabled and all
// requests pass through. GET /v1/health is always exempt.
func authMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}
		provided := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
