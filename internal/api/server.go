// Package api is the HTTP/JSON shell over the registry and the retrieval
// operations. It stays thin: parameter parsing, session scoping, error
// mapping, and history recording; all semantics live in the inner packages.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"codescope/internal/config"
	"codescope/internal/logging"
	"codescope/internal/project"
	"codescope/internal/storage"
)

// Server is the HTTP API server.
type Server struct {
	router   *http.ServeMux
	server   *http.Server
	addr     string
	cfg      *config.Config
	logger   *logging.Logger
	registry *project.Registry
	audit    *storage.AuditStore // optional; nil disables the audit trail
}

// NewServer creates a server bound to addr. audit may be nil.
func NewServer(addr string, cfg *config.Config, registry *project.Registry, audit *storage.AuditStore, logger *logging.Logger) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		addr:     addr,
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		audit:    audit,
	}
	s.registerRoutes()

	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", map[string]interface{}{"addr": s.addr})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the router; the last wrapper runs first.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	handler = TimeoutMiddleware(time.Duration(s.cfg.OperationTimeoutMs) * time.Millisecond)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware()(handler)
	return handler
}
