// Package http exposes a small read-only HTTP API next to the bot: health
// probes for the orchestrator, olymp status and queue snapshots for the
// organizer dashboard, and the Telegram webhook endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hselingforschool/olymp-queue-bot/internal/application/command"
	"github.com/hselingforschool/olymp-queue-bot/internal/application/query"
	"github.com/hselingforschool/olymp-queue-bot/internal/interface/http/handlers"
	"github.com/hselingforschool/olymp-queue-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds a single handler.
	RequestTimeout time.Duration

	// APIKeyHeader - header name for API key authentication.
	APIKeyHeader string

	// APIKeys - valid keys for /api/v1. Empty disables the check.
	APIKeys []string

	// DisableAPI leaves only health probes and the webhook.
	DisableAPI bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
		APIKeyHeader:   "X-API-Key",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// BotStats reports counters of the Telegram bot.
type BotStats interface {
	Stats() map[string]any
}

// Dependencies contains everything the HTTP handlers read from.
type Dependencies struct {
	Queries  *query.Service
	Contexts *command.ContextHolder

	// Optional
	Bot           BotStats
	HealthChecker *handlers.HealthChecker
	Webhook       *handlers.TelegramWebhook

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Queries == nil || deps.Contexts == nil {
		return nil, errors.New("queries and contexts are required")
	}
	defaults := DefaultConfig()
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = defaults.APIKeyHeader
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewHealthChecker("dev")
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Handler returns the root handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(handlers.SecurityHeaders)

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/live", s.handleLive)
	r.Get("/", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	if !s.config.DisableAPI {
		r.Route("/api/v1", s.apiRoutes)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Webhook Endpoints (Telegram)
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.Webhook != nil {
		r.With(handlers.RequestSizeLimit(1<<20)).Post("/webhook/telegram", s.deps.Webhook.ServeHTTP)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "Route not found")
	})
	return r
}

func (s *Server) apiRoutes(api chi.Router) {
	api.Use(chiMiddleware.Timeout(s.config.RequestTimeout))
	if len(s.config.APIKeys) > 0 {
		api.Use(handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.APIKeys).Middleware)
	}

	api.Get("/olymp", s.handleGetOlymp)
	api.Get("/queue", s.handleGetQueue)
	api.Get("/problems", s.handleGetProblems)
	api.Get("/participants/{id}/progress", s.handleGetProgress)
	api.Get("/entries/{id}/examiner", s.handleGetEntryExaminer)
	api.Get("/examiners/{id}/next", s.handleGetExaminerNext)
	api.Get("/stats", s.handleGetStats)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		log := s.logger.With(slog.String("request_id", chiMiddleware.GetReqID(r.Context())))
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), log)))

		log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Latency(time.Since(start)),
			slog.String("ip", r.RemoteAddr),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.FromContextOr(r.Context(), s.logger).Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: chiMiddleware.GetReqID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
		RequestID: chiMiddleware.GetReqID(r.Context()),
	})
}
