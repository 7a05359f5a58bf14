// Package server provides the HTTP REST API for the course backend.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/codeW-Krish/ai-course-backend/internal/db"
	"github.com/codeW-Krish/ai-course-backend/internal/generation"
	"github.com/codeW-Krish/ai-course-backend/internal/logger"
	"github.com/codeW-Krish/ai-course-backend/internal/outline"
	"github.com/codeW-Krish/ai-course-backend/internal/server/middleware"
	"github.com/codeW-Krish/ai-course-backend/internal/server/ratelimit"
	"github.com/codeW-Krish/ai-course-backend/internal/types"
)

// maxBodyBytes caps request bodies. Outlines are the largest payload.
const maxBodyBytes = 1 << 20

// CourseStore is the read side of course storage used by handlers. *db.DB implements it.
type CourseStore interface {
	GetCourse(ctx context.Context, courseID uuid.UUID) (*db.Course, error)
	ListPublicCourses(ctx context.Context) ([]db.Course, error)
	ListCoursesByCreator(ctx context.Context, userID uuid.UUID) ([]db.Course, error)
	ListEnrolledCourses(ctx context.Context, userID uuid.UUID) ([]db.Course, error)
	Enroll(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	ListUnitsWithSubtopics(ctx context.Context, courseID uuid.UUID) ([]db.UnitWithSubtopics, error)
	CountSubtopicsMissingContent(ctx context.Context, courseID uuid.UUID) (int, error)
	Ping(ctx context.Context) error
}

// Outlines creates and edits course outlines. *outline.Service implements it.
type Outlines interface {
	Generate(ctx context.Context, userID uuid.UUID, req *outline.Request) (*db.Course, error)
	Update(ctx context.Context, userID, courseID uuid.UUID, raw any) (*types.Outline, error)
}

// Generator drives content generation. *generation.Service implements it.
type Generator interface {
	Trigger(ctx context.Context, userID, courseID uuid.UUID, provider string) (*generation.TriggerResult, error)
	Retry(ctx context.Context, userID, courseID uuid.UUID, provider string) (*generation.TriggerResult, error)
	Status(ctx context.Context, userID, courseID uuid.UUID, since *time.Time) (*generation.StatusReport, error)
	GenerateAround(ctx context.Context, userID, subtopicID uuid.UUID, provider string) (*generation.AroundResult, error)
	Shutdown(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Courses     CourseStore
	Outlines    Outlines
	Generator   Generator
	Tokens      middleware.TokenValidator
	RateLimiter *ratelimit.Limiter
	Logger      *logger.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	courses         CourseStore
	outlines        Outlines
	generator       Generator
	rateLimiter     *ratelimit.Limiter
	log             *logger.Logger
	shutdownTimeout time.Duration
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		courses:         deps.Courses,
		outlines:        deps.Outlines,
		generator:       deps.Generator,
		rateLimiter:     deps.RateLimiter,
		log:             deps.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(nil)
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 30 * time.Second
	}

	auth := middleware.AuthMiddleware(deps.Tokens)
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /courses", s.handleListPublicCourses)

	// Course endpoints
	mux.Handle("GET /courses/me", protected(s.handleMyCourses))
	mux.Handle("GET /courses/me/enrolled", protected(s.handleEnrolledCourses))
	mux.Handle("POST /courses/generate-outline", protected(s.handleGenerateOutline))
	mux.Handle("PUT /courses/{id}/outline", protected(s.handleUpdateOutline))
	mux.Handle("POST /courses/{id}/enroll", protected(s.handleEnroll))
	mux.Handle("GET /courses/{id}/full", protected(s.handleCourseFull))

	// Generation endpoints
	mux.Handle("POST /courses/{id}/generate-content", protected(s.handleGenerateContent))
	mux.Handle("GET /courses/{id}/generation-status", protected(s.handleGenerationStatus))
	mux.Handle("POST /courses/{id}/retry-generation", protected(s.handleRetryGeneration))
	mux.Handle("POST /subtopics/{id}/generate-content", protected(s.handleGenerateAround))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // the first unit is generated inline
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM. Shutdown
// drains HTTP first, then waits for background generation runs.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		s.rateLimiter.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := s.generator.Shutdown(ctx); err != nil {
		s.log.Warn("abandoning background generation", "error", err)
	}
	s.rateLimiter.Stop()

	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

// handleHealth returns server health status. The database must answer a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.courses.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse maps err onto a status and writes the error envelope. Server-side
// failures are logged with the request path; their detail is not sent to the client.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	s.jsonResponse(w, status, errorBodyFor(err, status))
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		retryAfter := int(info.RetryAfter.Seconds())
		response["retry_after"] = retryAfter
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}

	s.log.Warn("rate limit exceeded",
		"client", s.extractClientID(r), "path", r.URL.Path, "limit", info.Limit, "reset_at", info.ResetTime)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
