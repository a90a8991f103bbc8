// Package api provides the HTTP surface of lumichat.
//
// Endpoints:
//
//	GET /chat          - streaming chat (chunked text/plain)
//	GET /health        - liveness probe
//	GET /ready         - readiness probe (database ping)
//	GET /api/sessions  - list session metadata
//	GET /api/sessions/{id} - one session's metadata
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, request id, logging, CORS
//   - health.go: health check endpoints
//   - session.go: session metadata endpoints
//   - chat.go: streaming chat endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumichat/lumichat/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout prevents Slowloris-style slow header attacks.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout bounds response writing. Streaming replies need far
	// longer than a JSON endpoint would.
	WriteTimeout = 2 * time.Minute

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 2 * time.Minute
)

// ServerConfig contains the dependencies for a Server.
type ServerConfig struct {
	Logger      log.Logger
	Chat        ChatStreamer
	Sessions    SessionDirectory
	Pool        *pgxpool.Pool // used by the readiness probe
	CORSOrigins []string
}

// Server is the HTTP server for lumichat.
type Server struct {
	mux         *http.ServeMux
	logger      log.Logger
	corsOrigins []string

	health  *HealthHandler
	session *SessionHandler
	chat    *ChatHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat streamer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:         mux,
		logger:      logger,
		corsOrigins: cfg.CORSOrigins,
		health:      NewHealthHandler(cfg.Pool, logger),
		session:     NewSessionHandler(cfg.Sessions, logger),
		chat:        NewChatHandler(cfg.Chat, logger),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)

	return s, nil
}

// Handler returns the HTTP handler with middleware applied.
// Order: recovery → request id → logging → CORS → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		corsMiddleware(s.corsOrigins),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
