// File: internal/service/server.go
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/quietops/linkhawk/api/schemas"
	"github.com/quietops/linkhawk/internal/config"
	"github.com/quietops/linkhawk/internal/executor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Enhancer is the prompt-transformation capability the service exposes.
type Enhancer interface {
	Enhance(ctx context.Context, raw string) (string, error)
}

// EnhancerFactory yields an Enhancer for the requested flag combination.
// Implementations memoize; the factory is called per request.
type EnhancerFactory func(useTemplates, useLLM bool) Enhancer

// Harvester executes one instruction against the platform.
type Harvester interface {
	Harvest(ctx context.Context, prompt string) (schemas.HarvestResult, error)
}

// HealthSource reports executor connection health.
type HealthSource interface {
	Health() executor.HealthSnapshot
}

// Server is the HTTP boundary over the transformation and harvest cores.
type Server struct {
	enhancers EnhancerFactory
	harvester Harvester
	health    HealthSource
	jobs      *JobStore
	logger    *zap.Logger
	httpSrv   *http.Server
}

// NewServer wires the HTTP surface. health may be nil when no executor is
// configured (enhance-only deployments).
func NewServer(cfg config.ServerConfig, enhancers EnhancerFactory, harvester Harvester, health HealthSource, logger *zap.Logger) *Server {
	s := &Server{
		enhancers: enhancers,
		harvester: harvester,
		health:    health,
		jobs:      NewJobStore(cfg.JobTTL),
		logger:    logger.Named("service"),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/enhance", s.handleEnhance)
		r.Post("/process", s.handleProcess)
		r.Post("/execute", s.handleExecute)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
	})
	return r
}

// logRequests emits one structured line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("HTTP service listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Shutdown drains in-flight requests and stops the job sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.jobs.Stop()
	return err
}

// -- Request / response shapes --

type enhanceRequest struct {
	Prompt       string `json:"prompt"`
	UseTemplates bool   `json:"use_templates"`
	UseLLM       bool   `json:"use_llm"`
}

type processRequest struct {
	enhanceRequest
	ExecuteImmediately bool `json:"execute_immediately"`
	Background         bool `json:"background"`
}

type executeRequest struct {
	EnhancedPrompt string `json:"enhanced_prompt"`
	OriginalPrompt string `json:"original_prompt"`
}

type apiResponse struct {
	Status            string                `json:"status"`
	OriginalPrompt    string                `json:"original_prompt,omitempty"`
	TransformedPrompt string                `json:"transformed_prompt,omitempty"`
	Result            string                `json:"result,omitempty"`
	ExtractedPosts    []schemas.FetchedPost `json:"extracted_posts"`
	DroppedRecords    int                   `json:"dropped_records,omitempty"`
	JobID             string                `json:"job_id,omitempty"`
	Error             string                `json:"error,omitempty"`
}

type healthResponse struct {
	Status   string                   `json:"status"`
	Message  string                   `json:"message"`
	Executor *executor.HealthSnapshot `json:"executor,omitempty"`
}

// -- Handlers --

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Message: "linkhawk service is running"}
	if s.health != nil {
		snap := s.health.Health()
		resp.Executor = &snap
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	transformed, err := s.enhancers(req.UseTemplates, req.UseLLM).Enhance(r.Context(), req.Prompt)
	if err != nil {
		s.writeError(w, req.Prompt, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apiResponse{
		Status:            "enhanced",
		OriginalPrompt:    strings.TrimSpace(req.Prompt),
		TransformedPrompt: transformed,
		ExtractedPosts:    []schemas.FetchedPost{},
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !s.decode(w, r, &req) {
		return
	}

	original := strings.TrimSpace(req.Prompt)
	transformed, err := s.enhancers(req.UseTemplates, req.UseLLM).Enhance(r.Context(), req.Prompt)
	if err != nil {
		s.writeError(w, req.Prompt, err)
		return
	}

	switch {
	case req.ExecuteImmediately:
		result, err := s.harvester.Harvest(r.Context(), transformed)
		if err != nil {
			s.writeError(w, req.Prompt, err)
			return
		}
		resp := resultResponse("completed", original, transformed, result)
		s.writeJSON(w, http.StatusOK, resp)

	case req.Background:
		job := s.jobs.Create(original, transformed)
		go s.runJob(job.ID, transformed)
		s.writeJSON(w, http.StatusAccepted, apiResponse{
			Status:            "enhanced_ready",
			OriginalPrompt:    original,
			TransformedPrompt: transformed,
			JobID:             job.ID,
			ExtractedPosts:    []schemas.FetchedPost{},
		})

	default:
		s.writeJSON(w, http.StatusOK, apiResponse{
			Status:            "enhanced_ready",
			OriginalPrompt:    original,
			TransformedPrompt: transformed,
			ExtractedPosts:    []schemas.FetchedPost{},
		})
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}

	original := req.OriginalPrompt
	if original == "" {
		original = req.EnhancedPrompt
	}

	result, err := s.harvester.Harvest(r.Context(), req.EnhancedPrompt)
	if err != nil {
		s.writeError(w, original, err)
		return
	}
	resp := resultResponse("executed", original, req.EnhancedPrompt, result)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "jobID"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, apiResponse{
			Status:         "error",
			Error:          "unknown job id",
			ExtractedPosts: []schemas.FetchedPost{},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// runJob executes a background harvest detached from the request context.
func (s *Server) runJob(jobID, transformed string) {
	result, err := s.harvester.Harvest(context.Background(), transformed)
	if err != nil {
		s.logger.Warn("Background harvest failed", zap.String("job_id", jobID), zap.Error(err))
		s.jobs.Fail(jobID, err)
		return
	}
	s.jobs.Complete(jobID, result)
}

// -- Helpers --

func resultResponse(status, original, transformed string, result schemas.HarvestResult) apiResponse {
	resp := apiResponse{
		Status:            status,
		OriginalPrompt:    original,
		TransformedPrompt: transformed,
		ExtractedPosts:    []schemas.FetchedPost{},
	}
	switch result.Kind {
	case schemas.ResultPosts:
		resp.ExtractedPosts = result.Posts
		resp.DroppedRecords = result.Dropped
		resp.Result = fmt.Sprintf("Fetched %d post(s)", len(result.Posts))
	default:
		resp.Result = result.Confirmation
	}
	return resp
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiResponse{
			Status:         "error",
			Error:          "invalid JSON body",
			ExtractedPosts: []schemas.FetchedPost{},
		})
		return false
	}
	return true
}

// writeError maps the closed error taxonomy onto status codes: invalid input
// is the caller's fault, everything else is a server-side failure.
func (s *Server) writeError(w http.ResponseWriter, original string, err error) {
	status := http.StatusInternalServerError
	var invalid *schemas.InvalidInputError
	if errors.As(err, &invalid) {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, apiResponse{
		Status:         "error",
		OriginalPrompt: strings.TrimSpace(original),
		Error:          err.Error(),
		ExtractedPosts: []schemas.FetchedPost{},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
