// Package server provides the HTTP API of the resume orchestrator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/resume-orchestrator/internal/config"
	"github.com/jonathan/resume-orchestrator/internal/server/middleware"
	"github.com/jonathan/resume-orchestrator/internal/server/ratelimit"
	"github.com/jonathan/resume-orchestrator/internal/service"
)

// Server defaults.
const (
	DefaultShutdownTimeout = 30 * time.Second
	DefaultKeepAlive       = 15 * time.Second
	maxBodyBytes           = 1 << 20
)

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	service     *service.Service
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	logger      *slog.Logger
	keepAlive   time.Duration
	shutdown    time.Duration
}

// Config holds server configuration
type Config struct {
	Addr    string
	Service *service.Service
	// RateLimit nil uses ratelimit.DefaultConfig.
	RateLimit *ratelimit.Config
	// JWT enables bearer authentication on mutating routes when set.
	JWT *config.JWTConfig
	// MCP is mounted at POST /mcp when set.
	MCP             http.Handler
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	// EventKeepAlive is the SSE comment interval.
	EventKeepAlive time.Duration
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("server requires a service")
	}
	s := &Server{
		service:     cfg.Service,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		logger:      cfg.Logger,
		keepAlive:   cfg.EventKeepAlive,
		shutdown:    cfg.ShutdownTimeout,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.keepAlive <= 0 {
		s.keepAlive = DefaultKeepAlive
	}
	if s.shutdown <= 0 {
		s.shutdown = DefaultShutdownTimeout
	}
	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /providers", s.handleProviders)

	mux.Handle("POST /runs", s.protect(http.HandlerFunc(s.handleCreateRun)))
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{id}/pdf", s.handleGetArtifact)
	mux.HandleFunc("GET /runs/{id}/pdf/file", s.handleDownloadArtifact)
	mux.HandleFunc("GET /runs/{id}/events", s.handleRunEvents)
	mux.Handle("POST /runs/{id}/resubmit", s.protect(http.HandlerFunc(s.handleResubmitRun)))
	mux.Handle("POST /runs/{id}/cancel", s.protect(http.HandlerFunc(s.handleCancelRun)))

	if cfg.MCP != nil {
		mux.Handle("POST /mcp", s.protect(cfg.MCP))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully and waits
// for background runs.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.rateLimiter.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	if err := s.service.Coordinator().Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// protect requires a bearer token when authentication is configured.
func (s *Server) protect(next http.Handler) http.Handler {
	if s.jwtService == nil {
		return next
	}
	return middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(next)
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their limit with 429.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// extractClientID uses the remote IP as the client identifier.
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
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	seconds := int(info.RetryAfter.Seconds())
	if seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	s.logger.Warn("rate limit exceeded", "path", r.URL.Path, "method", r.Method, "limit", info.Limit)
	s.errorResponse(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// handleError maps err to a status code. Internal errors are logged and
// reported without detail.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadJSON
	}
	return nil
}
