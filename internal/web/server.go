// Package web serves the session over HTTP: a JSON API for login, data
// sources and commands, plus an HTML transcript page.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/user/vernacular/internal/datactx"
	"github.com/user/vernacular/internal/delivery"
	"github.com/user/vernacular/internal/gateway"
	"github.com/user/vernacular/internal/identity"
	"github.com/user/vernacular/internal/logging"
	"github.com/user/vernacular/internal/preview"
	"github.com/user/vernacular/internal/session"
	"github.com/user/vernacular/internal/types"
)

// Gateway is the part of gateway.Gateway the server needs.
type Gateway interface {
	Session() (*session.Orchestrator, error)
	Login(ctx context.Context, email, credential string) (*types.Identity, error)
	Logout(ctx context.Context) error
	Mode() identity.Mode
}

// Server is the HTTP handler for the web presenter.
type Server struct {
	gw       Gateway
	previews *preview.Parser
	validate *validator.Validate
	page     *renderer
	log      *zap.Logger
	mux      *http.ServeMux

	maxBody int64

	mu          sync.Mutex
	celebration *delivery.Notification
}

// MaxBodyBytes caps request bodies, uploads included.
const MaxBodyBytes = 32 << 20

// NewServer creates a Server over gw. previews may be nil.
func NewServer(gw Gateway, previews *preview.Parser, logger *zap.Logger) *Server {
	if previews == nil {
		previews = preview.New(preview.DefaultRows, logger)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	// registration only fails on an empty tag name
	_ = v.RegisterValidation("notblank", validators.NotBlank)

	s := &Server{
		gw:       gw,
		previews: previews,
		validate: v,
		page:     newRenderer(),
		log:      logging.Named(logger, "web"),
		mux:      http.NewServeMux(),
		maxBody:  MaxBodyBytes,
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("POST /api/sources", s.handleIngest)
	s.mux.HandleFunc("GET /api/sources/{name}/preview", s.handlePreview)
	s.mux.HandleFunc("DELETE /api/sources/{name}", s.handleEvict)
	s.mux.HandleFunc("POST /api/commands", s.handleCommand)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Celebrate records the latest celebration. It is registered as a delivery
// handler and surfaced through GET /api/session while its session lasts.
func (s *Server) Celebrate(_ context.Context, n delivery.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.celebration = &n
	return nil
}

func (s *Server) lastCelebration(id types.SessionID) *delivery.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.celebration == nil || s.celebration.SessionID != id {
		return nil
	}
	n := *s.celebration
	return &n
}

func (s *Server) clearCelebration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.celebration = nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   string(s.gw.Mode()),
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,max=320"`
	Password string `json:"password" validate:"max=1024"`
}

type loginResponse struct {
	Identity *types.Identity `json:"identity"`
	Mode     identity.Mode   `json:"mode"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, err := s.gw.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		code := identity.CodeOf(err)
		status := http.StatusUnauthorized
		switch code {
		case identity.CodeInvalidEmailFormat:
			status = http.StatusBadRequest
		case identity.CodeTooManyAttempts:
			status = http.StatusTooManyRequests
		case identity.CodeUnknown:
			status = http.StatusBadGateway
		}
		s.log.Info("login rejected", zap.String("code", string(code)), zap.Error(err))
		writeJSON(w, status, map[string]string{
			"error": identity.UserMessage(code),
			"code":  string(code),
		})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Identity: id, Mode: s.gw.Mode()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.Logout(r.Context()); err != nil {
		s.log.Warn("logout failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "logout failed")
		return
	}
	s.clearCelebration()
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type sessionResponse struct {
	session.Snapshot
	DataLayer   string                 `json:"dataLayer"`
	Celebration *delivery.Notification `json:"celebration,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Snapshot:    snap,
		DataLayer:   snap.DataLayer(),
		Celebration: s.lastCelebration(snap.ID),
	})
}

type ingestRequest struct {
	Name    string `json:"name" validate:"notblank,max=255"`
	Content string `json:"content" validate:"required"`
}

type ingestResponse struct {
	Name        string `json:"name"`
	RecordCount int    `json:"recordCount"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w)
	if !ok {
		return
	}
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}

	count := s.previews.Count(req.Content)
	if err := sess.Ingest(req.Name, req.Content, count); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{Name: req.Name, RecordCount: count})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w)
	if !ok {
		return
	}
	name := r.PathValue("name")
	raw, err := sess.Source(name)
	if errors.Is(err, datactx.ErrNotFound) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	tbl, err := s.previews.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, preview.Unparseable)
		return
	}
	writeJSON(w, http.StatusOK, tbl)
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w)
	if !ok {
		return
	}
	if !sess.Evict(r.PathValue("name")) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commandRequest struct {
	Text string `json:"text" validate:"notblank,max=4000"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w)
	if !ok {
		return
	}
	var req commandRequest
	if !s.decode(w, r, &req) {
		return
	}

	if !sess.Submit(r.Context(), req.Text) {
		writeError(w, http.StatusConflict, "a command is already being analyzed")
		return
	}
	snap := sess.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Snapshot:    snap,
		DataLayer:   snap.DataLayer(),
		Celebration: s.lastCelebration(snap.ID),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var snap *session.Snapshot
	if sess, err := s.gw.Session(); err == nil {
		v := sess.Snapshot()
		snap = &v
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.render(w, snap, s.gw.Mode()); err != nil {
		s.log.Error("render index failed", zap.Error(err))
	}
}

func (s *Server) session(w http.ResponseWriter) (*session.Orchestrator, bool) {
	sess, err := s.gw.Session()
	if errors.Is(err, gateway.ErrNoSession) {
		writeError(w, http.StatusUnauthorized, "login required")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, strings.ToLower(verrs[0].Field())+" is invalid")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
