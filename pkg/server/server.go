// Package server ties the session table, the address space and the
// service handlers together.
//
// A transport decodes OPC UA requests and passes them to Dispatch, which
// resolves the session, runs the handler inside a trace span and turns
// request-level failures into ServiceFaults. Publish requests are parked
// in the session's queue and answered later by the driver goroutine that
// Serve runs: each pass sweeps idle sessions, ticks every subscription
// engine and hands finished publish responses to the Deliver callback.
//
// Lifecycle:
//  1. New wires the collaborators
//  2. Serve runs the driver until the context is cancelled or Stop is called
//  3. On shutdown every live session is terminated and one final pass
//     flushes the publish requests they still held
package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/audit"
	"github.com/marmos91/opcuad/pkg/metrics"
	"github.com/marmos91/opcuad/pkg/service"
	"github.com/marmos91/opcuad/pkg/session"
	"github.com/marmos91/opcuad/pkg/subscription"
)

const (
	// DefaultTickInterval is the driver period. It bounds how late a
	// publishing cycle can fire.
	DefaultTickInterval = 50 * time.Millisecond

	// DefaultSweepInterval is how often idle sessions are expired and
	// terminated ones purged.
	DefaultSweepInterval = time.Second
)

// ErrServerStopped is returned by Serve when it is called after Stop.
var ErrServerStopped = errors.New("server stopped")

// DeliverFunc hands finished publish responses of one session to the
// transport. It runs on the driver goroutine and must not block for long.
type DeliverFunc func(s *session.Session, results []subscription.PublishResult)

// Config tunes the driver.
type Config struct {
	TickInterval  time.Duration
	SweepInterval time.Duration
	Endpoints     []*ua.EndpointDescription
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Server owns the session table and drives it.
type Server struct {
	cfg      Config
	sessions *session.Manager
	space    *addressspace.AddressSpace
	handler  *service.Handler
	metrics  metrics.ServiceMetrics
	deliver  DeliverFunc
	clock    func() time.Time

	lastSweep time.Time

	started      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

// New creates a server over sessions and space. auditLog and m may be nil.
func New(cfg Config, sessions *session.Manager, space *addressspace.AddressSpace, auditLog *audit.Log, m metrics.ServiceMetrics) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		space:    space,
		metrics:  m,
		clock:    time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.handler = &service.Handler{
		Sessions:  sessions,
		Space:     space,
		Audit:     auditLog,
		Endpoints: cfg.Endpoints,
		Clock:     s.now,
	}
	return s
}

// SetDeliver installs the callback receiving publish responses. Call it
// before Serve.
func (s *Server) SetDeliver(fn DeliverFunc) { s.deliver = fn }

// SetClock replaces the time source of the server, its handlers and its
// session table. Tests only.
func (s *Server) SetClock(clock func() time.Time) {
	s.clock = clock
	s.sessions.SetClock(clock)
}

// Sessions returns the session table.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// Space returns the address space.
func (s *Server) Space() *addressspace.AddressSpace { return s.space }

// Handler returns the service handlers.
func (s *Server) Handler() *service.Handler { return s.handler }

func (s *Server) now() time.Time { return s.clock() }

// Serve runs the driver until ctx is cancelled or Stop is called, then
// terminates every session and flushes their publish queues.
func (s *Server) Serve(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStopped
	}
	defer close(s.done)

	logger.Info("Server driver started",
		"tick_interval", s.cfg.TickInterval,
		"sweep_interval", s.cfg.SweepInterval)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return ctx.Err()
		case <-s.shutdown:
			s.drain()
			return nil
		case <-ticker.C:
			s.Drive(ctx, s.now())
		}
	}
}

// drain terminates every live session and delivers what they still held.
func (s *Server) drain() {
	n := s.sessions.CloseAll()
	delivered := s.Drive(context.Background(), s.now())
	logger.Info("Server driver stopped",
		logger.KeyCount, n,
		"delivered", delivered)
}

// Stop ends Serve and waits for the final flush or for ctx to expire.
// It is safe to call more than once, and before Serve.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})

	if s.started.CompareAndSwap(false, true) {
		s.drain()
		close(s.done)
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
