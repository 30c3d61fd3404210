package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/api/handlers"
	"github.com/marmos91/opcuad/pkg/identity"
)

// drainTimeout bounds the graceful shutdown triggered by context
// cancellation in Start.
const drainTimeout = 5 * time.Second

// Server serves the diagnostics API built by NewRouter.
type Server struct {
	config APIConfig
	http   *http.Server

	mu   sync.Mutex
	addr net.Addr

	stopOnce sync.Once
	stopErr  error
}

// NewServer returns a stopped server. With tokens nil every DELETE is
// refused, since no caller can prove the admin role.
func NewServer(config APIConfig, sessions handlers.SessionManager, tokens *identity.TokenValidator) *Server {
	config.ApplyDefaults()
	return &Server{
		config: config,
		http: &http.Server{
			Handler:      NewRouter(sessions, tokens, config.AdminRole),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Start listens on the configured port and serves until ctx is done, then
// shuts down gracefully and returns nil. A listener failure is returned
// immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("API server failed to listen on port %d: %w", s.config.Port, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	logger.Info("API server listening", "addr", ln.Addr().String())

	served := make(chan error, 1)
	go func() { served <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return s.Stop(drainCtx)
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// expires. Later calls return the first call's result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.http.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("API server shutdown: %w", err)
			logger.Warn("API server shutdown incomplete", logger.KeyError, err)
			return
		}
		logger.Info("API server stopped")
	})
	return s.stopErr
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
