// Package chi implements the HTTP transport for the engram API.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/engramlabs/engram/internal/domain"
	"github.com/engramlabs/engram/internal/domain/scope"
	healthuc "github.com/engramlabs/engram/internal/usecase/health"
	pruneuc "github.com/engramlabs/engram/internal/usecase/prune"
	searchuc "github.com/engramlabs/engram/internal/usecase/search"
	summarizeuc "github.com/engramlabs/engram/internal/usecase/summarize"
	writeuc "github.com/engramlabs/engram/internal/usecase/write"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the memory engine over HTTP.
type Server struct {
	search        *searchuc.Service
	write         *writeuc.Service
	summarize     *summarizeuc.Service
	prune         *pruneuc.Service
	health        *healthuc.Service
	validate      *validator.Validate
	logger        *zap.Logger
	defaultK      int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	write *writeuc.Service,
	summarize *summarizeuc.Service,
	prune *pruneuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:    search,
		write:     write,
		summarize: summarize,
		prune:     prune,
		health:    health,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		defaultK:  10,
	}
	s.errorHandlers = []errorHandler{
		policyViolationHandler,
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusBadGateway, codeBackendUnavailable),
		sentinelHandler(domain.ErrEncoderUnavailable, http.StatusBadGateway, codeEncoderUnavailable),
	}
	return s
}

// WithDefaultK overrides the result count used when a search omits k.
func (s *Server) WithDefaultK(k int) *Server {
	if k > 0 {
		s.defaultK = k
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/events", s.CreateEvent)
		r.Delete("/events/{id}", s.DeleteEvent)
		r.Post("/threads/{threadID}/summarize", s.Summarize)
		r.Get("/threads/{threadID}/summarize/status", s.SummarizeStatus)
		r.Post("/prune", s.Prune)
	})
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	scopes, err := scope.ParseSet(req.Scopes)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	k := req.K
	if k == 0 {
		k = s.defaultK
	}

	resp, err := s.search.Search(r.Context(), searchuc.Request{
		Query:    req.Query,
		Scopes:   scopes,
		K:        k,
		Project:  req.Project,
		ThreadID: req.ThreadID,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchToDTO(resp))
}

// CreateEvent handles POST /v1/events.
func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req writeEventRequest
	if !s.decode(w, r, &req) {
		return
	}

	event, err := s.write.Write(r.Context(), writeuc.Request{
		Scope:      req.Scope,
		Project:    req.Project,
		ThreadID:   req.ThreadID,
		Text:       req.Text,
		Metadata:   req.Metadata,
		Importance: req.Importance,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, eventToDTO(&event))
}

// DeleteEvent handles DELETE /v1/events/{id}. This is the hard-delete
// escape hatch; routine lifecycle management archives via prune instead.
func (s *Server) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	project := r.URL.Query().Get("project")

	if err := s.prune.HardDelete(r.Context(), project, id); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Summarize handles POST /v1/threads/{threadID}/summarize. A below-threshold
// thread is a no-op and answers 204.
func (s *Server) Summarize(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	project := r.URL.Query().Get("project")

	summary, err := s.summarize.TriggerSummarize(r.Context(), project, threadID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if summary == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusCreated, eventToDTO(summary))
}

// SummarizeStatus handles GET /v1/threads/{threadID}/summarize/status.
func (s *Server) SummarizeStatus(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	project := r.URL.Query().Get("project")

	status, err := s.summarize.Status(r.Context(), project, threadID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := summarizeStatusResponse{LastID: status.LastID, Pending: status.Pending}
	if !status.LastRun.IsZero() {
		lastRun := status.LastRun
		resp.LastRun = &lastRun
	}
	writeJSON(w, http.StatusOK, resp)
}

// Prune handles POST /v1/prune.
func (s *Server) Prune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if !s.decode(w, r, &req) {
		return
	}

	sc, err := scope.Parse(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	archived, err := s.prune.TriggerPrune(r.Context(), req.Project, sc, req.Threshold)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pruneResponse{Archived: archived})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decode parses and validates a JSON request body. On failure it writes the
// error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, validationMessage(err))
		return false
	}
	return true
}

// validationMessage flattens validator errors into one client-safe line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "validation failed"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gte", "lte":
		return fe.Field() + " is out of range"
	default:
		return fe.Field() + " is invalid"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrPolicyViolation,
		domain.ErrNotFound,
		domain.ErrBackendUnavailable,
		domain.ErrEncoderUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// policyViolationHandler answers 422 and names the detector that fired so
// callers can correct the payload.
func policyViolationHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrPolicyViolation) {
		return false
	}
	var pve *domain.PolicyViolationError
	if errors.As(err, &pve) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:     codePolicyViolation,
			Message:  msg,
			Detector: pve.Detector,
		})
		return true
	}
	writeError(w, http.StatusUnprocessableEntity, codePolicyViolation, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
