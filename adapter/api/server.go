// Package api exposes the webhook ingress and the entitlement query API over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/felixgeelhaar/saffron/pkg/observability"
)

// ReadinessCheck reports whether the service's dependencies are reachable.
type ReadinessCheck func(ctx context.Context) error

// MetricsSnapshotter exposes process-local metrics.
type MetricsSnapshotter interface {
	Snapshot() map[string]any
}

// Server is the HTTP server for webhooks and entitlement queries.
type Server struct {
	router   chi.Router
	server   *http.Server
	logger   *slog.Logger
	webhooks *WebhookHandler
	queries  *QueryHandler
	ready    ReadinessCheck
	metrics  MetricsSnapshotter
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// Metrics, when set, is served at GET /metrics.
	Metrics MetricsSnapshotter
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates the API server. queries and ready may be nil.
func NewServer(cfg ServerConfig, webhooks *WebhookHandler, queries *QueryHandler, ready ReadinessCheck, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		webhooks: webhooks,
		queries:  queries,
		ready:    ready,
		metrics:  cfg.Metrics,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger(s.logger))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	if s.metrics != nil {
		s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.metrics.Snapshot())
		})
	}

	s.router.Post("/webhooks/stripe", s.webhooks.HandleStripe)

	if s.queries != nil {
		s.router.Route("/api/v1/users/{userID}", func(r chi.Router) {
			r.Get("/features/{feature}", s.queries.GetFeature)
			r.Get("/quotas/{limit}", s.queries.GetQuota)
		})
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "dependencies unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting billing API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down billing API server")
	return s.server.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.DebugContext(ctx, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", "error", err)
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}

// writeAPIError writes one of the predefined API errors.
func writeAPIError(w http.ResponseWriter, apiErr *APIError) {
	writeJSON(w, apiErr.Status, apiErr)
}

// APIError represents an API error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common API errors
var (
	ErrBadRequest = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "bad_request",
		Message: "Invalid request",
	}
	ErrInvalidSignature = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "invalid_signature",
		Message: "Webhook signature verification failed",
	}
	ErrMalformedEvent = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "malformed_event",
		Message: "Webhook payload is not a valid event",
	}
	ErrPayloadTooLarge = &APIError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "payload_too_large",
		Message: "Webhook payload exceeds the size limit",
	}
	ErrTimeout = &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "timeout",
		Message: "Webhook processing timed out",
	}
	ErrInternalServer = &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "Internal server error",
	}
)
