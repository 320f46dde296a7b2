// Package httpapi is the gateway's HTTP surface (SPEC_FULL.md §6): chat
// completion proxying, a static model list, liveness, and an operator status
// view, composed from internal/httpapi/middleware and
// internal/httpapi/handlers.
//
// Grounded on the teacher's pkg/backend.Server: an http.ServeMux plus a
// hand-assembled middleware chain built in NewServer, and the same
// Start/Shutdown/ListenAndServeWithGracefulShutdown shape.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cecil-the-coder/token-gateway/internal/httpapi/handlers"
	"github.com/cecil-the-coder/token-gateway/internal/httpapi/middleware"
	"github.com/cecil-the-coder/token-gateway/pkg/types"
)

// Logger is the subset of internal/gatewaylog.Logger the HTTP surface needs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Config wires the HTTP surface's collaborators. Every field is an explicit
// dependency (SPEC_FULL.md §9's "no package-level singletons" design note) —
// Server never reaches for a global.
type Config struct {
	ListenAddr     string
	RequestTimeout time.Duration
	AdminKey       string
	Models         []string
	Strategy       types.Strategy

	// PerKeyRateLimit throttles each resolved caller independently
	// (SPEC_FULL.md's DOMAIN STACK, golang.org/x/time/rate). Zero disables it.
	PerKeyRateLimit      float64
	PerKeyRateLimitBurst int

	Allocator     handlers.Allocator
	KeyResolver   middleware.KeyResolver
	HealthChecker handlers.SweepTimer
	AdminStore    handlers.StatusStore
	StoreProbe    func(ctx context.Context) error
	Doer          handlers.Doer
	Logger        Logger
}

// Server is the gateway's HTTP surface.
type Server struct {
	cfg        Config
	httpServer *http.Server
	mux        *http.ServeMux
}

// publicPaths bypass BearerAuth: liveness must be reachable without a key so
// an external prober can query it, and /admin/ is guarded separately by
// AdminAuth's admin key rather than a per-caller gateway key.
var publicPaths = []string{"/healthz", "/admin/"}

// NewServer constructs a Server and registers every route.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	chatHandler := handlers.NewChatHandler(s.cfg.Allocator, s.cfg.Doer, s.cfg.Strategy)
	modelsHandler := handlers.NewModelsHandler(s.cfg.Models)
	healthHandler := handlers.NewHealthHandler(s.cfg.HealthChecker, s.cfg.StoreProbe)
	adminHandler := handlers.NewAdminHandler(s.cfg.AdminStore)

	s.mux.HandleFunc("/v1/chat/completions", chatHandler.Complete)
	s.mux.HandleFunc("/v1/models", modelsHandler.List)
	s.mux.HandleFunc("/healthz", healthHandler.Health)

	adminChain := middleware.AdminAuth(s.cfg.AdminKey)
	s.mux.Handle("/admin/status", adminChain(http.HandlerFunc(adminHandler.Status)))
}

// applyMiddleware builds the outer middleware chain: Recovery wraps
// Logging wraps RequestID wraps BearerAuth wraps RateLimit wraps the mux,
// matching the teacher's "outer middleware wraps inner" composition order.
// RateLimit runs innermost, right before the mux, since it keys off the
// owner ID BearerAuth resolves earlier in the chain.
func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	h = middleware.RateLimit(s.cfg.PerKeyRateLimit, s.cfg.PerKeyRateLimitBurst)(h)
	h = middleware.BearerAuth(s.cfg.KeyResolver, publicPaths)(h)
	h = middleware.RequestID(h)
	h = middleware.Logging(s.cfg.Logger)(h)
	h = middleware.Recovery(s.cfg.Logger)(h)
	return h
}

// Start builds the middleware chain and begins listening. Blocks until the
// server stops or returns an error.
func (s *Server) Start() error {
	handler := s.applyMiddleware(s.mux)

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  s.cfg.RequestTimeout,
		WriteTimeout: s.cfg.RequestTimeout,
	}

	s.cfg.Logger.Info("starting http surface", "addr", s.cfg.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shut down http surface: %w", err)
	}
	return nil
}

// Handler exposes the fully wrapped handler for tests that drive the server
// via httptest.NewServer instead of a real listener.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.mux)
}
