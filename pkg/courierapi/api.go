// Package courierapi exposes the courier's lock/state machinery over
// HTTP: message status lookups, claim/complete/fail, a multi-project
// DingTalk webhook, and a project registry management surface.
package courierapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/courier"
	"github.com/monoco-dev/fabric/pkg/courier/state"
	"github.com/monoco-dev/fabric/pkg/logger"
	"github.com/monoco-dev/fabric/pkg/mailbox"
	"github.com/monoco-dev/fabric/pkg/metrics"
)

// APIPrefix is the base path every versioned endpoint is mounted
// under.
const APIPrefix = "/api/v1/courier"

// Version is reported by the health endpoint.
const Version = "1.0.0"

const dingtalkTimestampWindow = time.Hour

// Server wires a chi router over a LockManager/MessageStateManager
// pair plus a project Registry, and runs it as an http.Server whose
// lifecycle is managed with context cancellation rather than the
// original's self-request shutdown trick.
type Server struct {
	Locks    *state.LockManager
	States   *state.MessageStateManager
	Registry *courier.Registry
	Clock    clock.Clock
	Metrics  *metrics.Collectors

	Host string
	Port int

	httpServer *http.Server
}

// WithMetrics attaches a Collectors instance whose registry is served
// at /metrics. Passing nil (the default) omits the route entirely.
func (s *Server) WithMetrics(m *metrics.Collectors) *Server {
	s.Metrics = m
	return s
}

// NewServer constructs a Server. clk may be nil to use the real clock.
func NewServer(locks *state.LockManager, states *state.MessageStateManager, reg *courier.Registry, host string, port int, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.New()
	}

	return &Server{Locks: locks, States: states, Registry: reg, Clock: clk, Host: host, Port: port}
}

// Router builds the chi router backing this server; exported so tests
// can exercise it with httptest without binding a real port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get(APIPrefix+"/health", s.handleHealth)

	if s.Metrics != nil {
		r.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/webhook/dingtalk/{slug}", s.handleDingtalkWebhook)
		r.Post("/registry/register", s.handleRegistryRegister)
		r.Post("/registry/list", s.handleRegistryList)

		r.Get("/messages/{id}", s.handleGetMessage)
		r.Post("/messages/{id}/claim", s.handleClaim)
		r.Post("/messages/{id}/complete", s.handleComplete)
		r.Post("/messages/{id}/fail", s.handleFail)
	})

	return r
}

// ListenAndServe starts the HTTP server and blocks until ctx is
// cancelled, at which point it shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.Host + ":" + portString(s.Port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}

		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), courier.ServiceStopTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return <-errCh
	case err := <-errCh:
		return err
	}
}

func portString(port int) string {
	return strconv.Itoa(port)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err *APIError) {
	s.writeJSON(w, err.StatusCode, map[string]any{
		"success": false,
		"error":   err.Code,
		"message": err.Message,
	})
}

func (s *Server) readJSON(r *http.Request, v any) *APIError {
	if r.ContentLength == 0 {
		return newAPIError("invalid request body", 400, "invalid_body")
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return newAPIError("invalid request body", 400, "invalid_body")
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, 200, map[string]any{
		"status":  "healthy",
		"version": Version,
		"adapters": map[string]any{
			"dingtalk": map[string]any{"status": "enabled"},
			"email":    map[string]any{"status": "disabled"},
			"slack":    map[string]any{"status": "disabled"},
		},
	})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	lock, ok := s.Locks.Get(messageID)

	status := mailbox.StatusNew
	if ok {
		status = lock.Status
	}

	s.writeJSON(w, 200, map[string]any{
		"success":    true,
		"message_id": messageID,
		"status":     status,
		"lock":       lock,
	})
}

type claimRequest struct {
	AgentID string `json:"agent_id"`
	Timeout int64  `json:"timeout"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req claimRequest
	if apiErr := s.readJSON(r, &req); apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	if req.AgentID == "" {
		s.writeError(w, newAPIError("agent_id required", 400, "missing_agent_id"))
		return
	}

	timeout := state.DefaultClaimTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	lock, err := s.Locks.Claim(messageID, req.AgentID, timeout)
	if err != nil {
		s.handleLockError(w, r, messageID, err)
		return
	}

	s.writeJSON(w, 200, map[string]any{
		"success":    true,
		"message_id": messageID,
		"status":     lock.Status,
		"claimed_by": lock.ClaimedBy,
		"claimed_at": lock.ClaimedAt,
		"expires_at": lock.ExpiresAt,
	})
}

type agentActionRequest struct {
	AgentID   string `json:"agent_id"`
	Reason    string `json:"reason"`
	Retryable *bool  `json:"retryable"`
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req agentActionRequest
	if apiErr := s.readJSON(r, &req); apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	if req.AgentID == "" {
		s.writeError(w, newAPIError("agent_id required", 400, "missing_agent_id"))
		return
	}

	archivedPath, err := s.States.Complete(messageID, req.AgentID)
	if err != nil {
		s.handleLockError(w, r, messageID, err)
		return
	}

	s.writeJSON(w, 200, map[string]any{
		"success":       true,
		"message_id":    messageID,
		"status":        mailbox.StatusCompleted,
		"archived_path": archivedPath,
	})
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req agentActionRequest
	if apiErr := s.readJSON(r, &req); apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	if req.AgentID == "" {
		s.writeError(w, newAPIError("agent_id required", 400, "missing_agent_id"))
		return
	}

	retryable := true
	if req.Retryable != nil {
		retryable = *req.Retryable
	}

	entry, _, deadletterPath, err := s.States.Fail(messageID, req.AgentID, req.Reason, retryable)
	if err != nil {
		s.handleLockError(w, r, messageID, err)
		return
	}

	s.writeJSON(w, 200, map[string]any{
		"success":         true,
		"message_id":      messageID,
		"status":          entry.Status,
		"retry_count":     entry.RetryCount,
		"deadletter_path": deadletterPath,
	})
}

func (s *Server) handleLockError(w http.ResponseWriter, r *http.Request, messageID string, err error) {
	switch {
	case errors.Is(err, state.ErrMessageNotFound):
		s.writeError(w, messageNotFoundError(messageID))
	case errors.Is(err, state.ErrMessageAlreadyClaimed):
		s.writeJSON(w, 409, map[string]any{"success": false, "error": "already_claimed", "message": err.Error()})
	case errors.Is(err, state.ErrMessageNotClaimed):
		s.writeJSON(w, 409, map[string]any{"success": false, "error": "not_claimed", "message": err.Error()})
	case errors.Is(err, state.ErrClaimedByOther):
		s.writeJSON(w, 403, map[string]any{"success": false, "error": "claimed_by_other", "message": err.Error()})
	default:
		logger.CtxErr(r.Context(), err).Errorw("courier api unexpected error", "message_id", messageID)
		s.writeError(w, newAPIError(err.Error(), 500, "internal_error"))
	}
}

func (s *Server) handleDingtalkWebhook(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	project, ok := s.Registry.Get(slug)
	if !ok {
		s.writeError(w, newAPIError("project slug '"+slug+"' not found", 404, "not_found"))
		return
	}

	timestamp := r.URL.Query().Get("timestamp")
	sign := r.URL.Query().Get("sign")

	if secret := project.DingtalkSecret(); secret != "" {
		if timestamp == "" || sign == "" {
			s.writeError(w, newAPIError("missing timestamp or sign for signature verification", 401, "unauthorized"))
			return
		}

		if !verifyDingtalkSignature(timestamp, sign, secret) {
			logger.Ctx(r.Context()).Warnw("dingtalk signature verification failed", "slug", slug)
			s.writeError(w, newAPIError("signature verification failed", 401, "unauthorized"))

			return
		}

		if !dingtalkTimestampValid(timestamp, dingtalkTimestampWindow, s.Clock.Now()) {
			logger.Ctx(r.Context()).Warnw("dingtalk timestamp expired", "slug", slug)
			s.writeError(w, newAPIError("timestamp expired", 401, "unauthorized"))

			return
		}
	}

	var payload map[string]any
	if apiErr := s.readJSON(r, &payload); apiErr != nil {
		s.writeError(w, newAPIError("invalid dingtalk payload", 400, "invalid_body"))
		return
	}

	logger.Ctx(r.Context()).Infow("verified dingtalk webhook", "slug", slug)

	s.writeJSON(w, 200, map[string]any{"success": true, "project": slug})
}

type registerRequest struct {
	Slug   string         `json:"slug"`
	Path   string         `json:"path"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := s.readJSON(r, &req); apiErr != nil {
		s.writeError(w, apiErr)
		return
	}

	if req.Slug == "" || req.Path == "" {
		s.writeError(w, newAPIError("missing slug or path", 400, "invalid_body"))
		return
	}

	project, err := s.Registry.Register(req.Slug, req.Path, req.Config)
	if err != nil {
		s.writeError(w, newAPIError(err.Error(), 500, "internal_error"))
		return
	}

	s.writeJSON(w, 200, map[string]any{"success": true, "slug": req.Slug, "path": project.RootPath})
}

func (s *Server) handleRegistryList(w http.ResponseWriter, r *http.Request) {
	projects := s.Registry.List()

	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, map[string]any{
			"slug":    p.Slug,
			"path":    p.RootPath,
			"mailbox": p.MailboxPath,
		})
	}

	s.writeJSON(w, 200, map[string]any{"success": true, "projects": out})
}
