// Package api exposes the agent over HTTP: a JSON-RPC A2A endpoint per
// agent name plus liveness and readiness probes.
//
//	POST /a2a/{agent}  →  message/send envelope in, task envelope out
//	GET  /health       →  liveness probe
//	GET  /ready        →  readiness probe
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because blocking requests wait on the model.
	WriteTimeout = 120 * time.Second

	// IdleTimeout bounds keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the agent endpoint.
type Server struct {
	mux     *http.ServeMux
	a2a     *A2AHandler
	health  *HealthHandler
	limiter *rateLimiter
	logger  *slog.Logger
}

// NewServer creates a server with all routes registered.
func NewServer(a2a *A2AHandler, health *HealthHandler, logger *slog.Logger) (*Server, error) {
	if a2a == nil {
		return nil, fmt.Errorf("a2a handler is required")
	}
	if health == nil {
		return nil, fmt.Errorf("health handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:     mux,
		a2a:     a2a,
		health:  health,
		limiter: newRateLimiter(defaultRatePerSecond, defaultBurst),
		logger:  logger,
	}

	a2a.RegisterRoutes(mux)
	health.RegisterRoutes(mux)

	return s, nil
}

// Handler returns the full handler with middleware applied.
// Middleware order: recovery → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		rateLimitMiddleware(s.limiter, s.logger))
}

// Run starts the server and blocks until ctx is canceled, then shuts down
// gracefully and waits for in-flight webhook deliveries.
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
		err := srv.Shutdown(shutdownCtx)
		s.a2a.Wait()
		return err
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
