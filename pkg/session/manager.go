package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/securechannel"
	"github.com/marmos91/opcuad/pkg/subscription"
)

// Close reasons, used as metric labels and in logs.
const (
	ReasonClientRequest = "client_request"
	ReasonAdmin         = "admin"
	ReasonTimeout       = "timeout"
	ReasonShutdown      = "shutdown"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxSessions         = 100
	DefaultMinTimeout          = 10 * time.Second
	DefaultMaxTimeout          = time.Hour
	DefaultTimeout             = 5 * time.Minute
	DefaultTerminatedRetention = 30 * time.Second
	DefaultMaxMessageSize      = 16 * 1024 * 1024
)

// ErrSessionNotFound is returned by id-based lookups for unknown sessions.
var ErrSessionNotFound = errors.New("session not found")

// Config bounds the session table.
type Config struct {
	MaxSessions            int
	MinTimeout             time.Duration
	MaxTimeout             time.Duration
	DefaultTimeout         time.Duration
	TerminatedRetention    time.Duration
	MaxContinuationPoints  int
	MaxRequestMessageSize  uint32
	MaxResponseMessageSize uint32
	Subscription           subscription.Config
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.MinTimeout <= 0 {
		c.MinTimeout = DefaultMinTimeout
	}
	if c.MaxTimeout < c.MinTimeout {
		c.MaxTimeout = max(DefaultMaxTimeout, c.MinTimeout)
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	c.DefaultTimeout = clamp(c.DefaultTimeout, c.MinTimeout, c.MaxTimeout)
	if c.TerminatedRetention <= 0 {
		c.TerminatedRetention = DefaultTerminatedRetention
	}
	if c.MaxContinuationPoints <= 0 {
		c.MaxContinuationPoints = DefaultMaxContinuationPoints
	}
	if c.MaxRequestMessageSize == 0 {
		c.MaxRequestMessageSize = DefaultMaxMessageSize
	}
	if c.MaxResponseMessageSize == 0 {
		c.MaxResponseMessageSize = DefaultMaxMessageSize
	}
	return c
}

func clamp(d, lo, hi time.Duration) time.Duration {
	return min(max(d, lo), hi)
}

// CreateParams carries what a CreateSession request contributes.
type CreateParams struct {
	Name                   string
	EndpointURL            string
	ClientURI              string
	ClientAddr             string
	ClientCertificate      []byte
	SecurityPolicyURI      string
	RequestedTimeout       time.Duration
	MaxResponseMessageSize uint32
}

// Delivery is a batch of finished publish responses for one session.
type Delivery struct {
	Session *Session
	Results []subscription.PublishResult
}

// Manager is the server-wide session table. It creates, looks up,
// terminates and purges sessions, and drives their subscription engines.
type Manager struct {
	mu sync.RWMutex

	cfg     Config
	byToken map[string]*Session
	byID    map[string]*Session

	lastSessionID atomic.Uint32

	auth       *identity.Authenticator
	certs      *securechannel.CertificateStore
	metrics    *Metrics
	subMetrics subscription.Metrics
	clock      func() time.Time
}

// NewManager creates an empty session table.
func NewManager(cfg Config, auth *identity.Authenticator, certs *securechannel.CertificateStore) *Manager {
	if certs == nil {
		certs = securechannel.NewEmptyCertificateStore()
	}
	return &Manager{
		cfg:     cfg.withDefaults(),
		byToken: make(map[string]*Session),
		byID:    make(map[string]*Session),
		auth:    auth,
		certs:   certs,
		clock:   time.Now,
	}
}

// SetMetrics attaches session metrics. Must be called before serving.
func (m *Manager) SetMetrics(metrics *Metrics) { m.metrics = metrics }

// SetSubscriptionMetrics attaches the metrics handed to every new
// session's subscription engine.
func (m *Manager) SetSubscriptionMetrics(metrics subscription.Metrics) { m.subMetrics = metrics }

// SetClock replaces the time source used by request-driven operations.
func (m *Manager) SetClock(clock func() time.Time) { m.clock = clock }

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// NextSessionID returns a fresh session id. Ids strictly increase for the
// lifetime of the process, including under concurrent creation.
func (m *Manager) NextSessionID() *ua.NodeID {
	return ua.NewNumericNodeID(1, m.lastSessionID.Add(1))
}

func key(id *ua.NodeID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// Create allocates a session bound to a new secure channel.
func (m *Manager) Create(p CreateParams) (*Session, error) {
	now := m.clock()

	if len(p.ClientCertificate) > 0 {
		if err := m.certs.ValidateClientCertificate(p.ClientCertificate, now); err != nil {
			if errors.Is(err, securechannel.ErrCertificateTimeInvalid) {
				return nil, ua.StatusBadCertificateTimeInvalid
			}
			return nil, ua.StatusBadCertificateInvalid
		}
	}

	nonce, err := securechannel.CreateNonce()
	if err != nil {
		return nil, fmt.Errorf("create session nonce: %w", err)
	}

	timeout := m.cfg.DefaultTimeout
	if p.RequestedTimeout > 0 {
		timeout = clamp(p.RequestedTimeout, m.cfg.MinTimeout, m.cfg.MaxTimeout)
	}
	maxResponse := m.cfg.MaxResponseMessageSize
	if p.MaxResponseMessageSize > 0 && p.MaxResponseMessageSize < maxResponse {
		maxResponse = p.MaxResponseMessageSize
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveLocked() >= m.cfg.MaxSessions {
		return nil, ua.StatusBadTooManySessions
	}

	s := &Session{
		id:                     m.NextSessionID(),
		authToken:              ua.NewGUIDNodeID(1, uuid.NewString()),
		name:                   p.Name,
		endpointURL:            p.EndpointURL,
		clientURI:              p.ClientURI,
		clientAddr:             p.ClientAddr,
		timeout:                timeout,
		maxRequestMessageSize:  m.cfg.MaxRequestMessageSize,
		maxResponseMessageSize: maxResponse,
		clientCertificate:      p.ClientCertificate,
		nonce:                  nonce,
		createdAt:              now,
		lastActivity:           now,
		channel:                securechannel.New(m.certs, p.SecurityPolicyURI, p.ClientCertificate, now),
		subscriptions:          subscription.New(m.cfg.Subscription, m.subMetrics),
		continuationPoints:     NewContinuationPointStore(m.cfg.MaxContinuationPoints),
		services:               make(map[string]*ServiceCounter),
	}
	m.byToken[key(s.authToken)] = s
	m.byID[key(s.id)] = s
	m.metrics.recordCreated()

	logger.Info("Session created",
		logger.KeySessionID, s.id.String(),
		logger.KeySessionName, s.name,
		logger.KeyClientAddr, s.clientAddr,
		logger.KeyEndpoint, s.endpointURL)

	return s, nil
}

func (m *Manager) liveLocked() int {
	n := 0
	for _, s := range m.byID {
		if !s.IsTerminated() {
			n++
		}
	}
	return n
}

// Activate validates identityToken for the session owning authToken,
// rotates the server nonce and marks the session activated. A session may
// be activated again, which rebinds its secure channel.
func (m *Manager) Activate(authToken *ua.NodeID, identityToken *ua.ExtensionObject) (*Session, error) {
	s, ok := m.LookupByToken(authToken)
	if !ok {
		m.metrics.recordActivation("invalid_session")
		return nil, ua.StatusBadSessionIDInvalid
	}
	if s.IsTerminated() {
		m.metrics.recordActivation("closed")
		return nil, ua.StatusBadSessionClosed
	}

	user, err := m.authenticate(identityToken)
	if err != nil {
		m.metrics.recordActivation("rejected")
		logger.Warn("Session activation rejected",
			logger.KeySessionID, s.id.String(),
			logger.KeyError, err)
		return nil, err
	}

	nonce, err := securechannel.CreateNonce()
	if err != nil {
		return nil, fmt.Errorf("rotate session nonce: %w", err)
	}

	now := m.clock()
	if s.IsActivated() {
		s.channel.Rebind(now)
	}
	s.activate(user, nonce, now)
	m.metrics.recordActivation("ok")

	logger.Info("Session activated",
		logger.KeySessionID, s.id.String(),
		logger.KeyUser, user.Name)

	return s, nil
}

func (m *Manager) authenticate(token *ua.ExtensionObject) (*identity.User, error) {
	if m.auth == nil {
		return nil, ua.StatusBadIdentityTokenRejected
	}
	return m.auth.Authenticate(token)
}

// Validate resolves the session a service request targets and records
// the activity. The order of checks is: unknown token, terminated,
// not yet activated.
func (m *Manager) Validate(authToken *ua.NodeID) (*Session, error) {
	s, ok := m.LookupByToken(authToken)
	if !ok {
		return nil, ua.StatusBadSessionIDInvalid
	}
	if s.IsTerminated() {
		return nil, ua.StatusBadSessionClosed
	}
	if !s.IsActivated() {
		return nil, ua.StatusBadSessionNotActivated
	}
	s.Touch(m.clock())
	return s, nil
}

// Close terminates the session owning authToken on client request.
func (m *Manager) Close(authToken *ua.NodeID, deleteSubscriptions bool) (*Session, error) {
	s, ok := m.LookupByToken(authToken)
	if !ok {
		return nil, ua.StatusBadSessionIDInvalid
	}
	if !m.terminate(s, m.clock(), ReasonClientRequest, deleteSubscriptions) {
		return s, ua.StatusBadSessionClosed
	}
	return s, nil
}

// CloseByID terminates a session by its session id string, as the
// diagnostics API does.
func (m *Manager) CloseByID(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	m.terminate(s, m.clock(), ReasonAdmin, true)
	return s, nil
}

// CloseAll terminates every live session; used on shutdown.
func (m *Manager) CloseAll() int {
	now := m.clock()
	n := 0
	for _, s := range m.snapshot() {
		if m.terminate(s, now, ReasonShutdown, true) {
			n++
		}
	}
	return n
}

// terminate ends s once: queued publish requests are answered with
// BadSessionClosed, continuation points are released and the channel
// binding is dropped. It reports whether this call did the termination.
func (m *Manager) terminate(s *Session, now time.Time, reason string, deleteSubscriptions bool) bool {
	if !s.Terminate(now) {
		return false
	}

	drained := s.subscriptions.DrainPublishRequests(now, ua.StatusBadSessionClosed)
	if deleteSubscriptions {
		s.subscriptions.DeleteAll()
	}
	released := s.ReleaseContinuationPoints()
	s.channel.Release(now)
	m.metrics.recordClosed(reason, now.Sub(s.createdAt).Seconds())

	logger.Info("Session terminated",
		logger.KeySessionID, s.id.String(),
		logger.KeyReason, reason,
		logger.KeyCount, drained,
		logger.KeyEvicted, released)
	return true
}

// LookupByToken finds a session, terminated or not, by authentication token.
func (m *Manager) LookupByToken(authToken *ua.NodeID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byToken[key(authToken)]
	return s, ok
}

// LookupByID finds a session by its session id string.
func (m *Manager) LookupByID(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	return s, ok
}

// Len returns the number of sessions in the table, including terminated
// sessions awaiting purge.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Sessions returns diagnostics for every session, oldest first.
func (m *Manager) Sessions() []Diagnostics {
	sessions := m.snapshot()
	out := make([]Diagnostics, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Diagnostics())
	}
	sortDiagnostics(out)
	return out
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out
}

// Sweep terminates sessions idle longer than their timeout and purges
// sessions terminated more than the retention period ago. A session whose
// publish responses have not been collected by Tick yet stays until the
// next sweep.
func (m *Manager) Sweep(now time.Time) (expired, purged int) {
	for _, s := range m.snapshot() {
		if s.IsExpired(now) && m.terminate(s, now, ReasonTimeout, true) {
			expired++
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.byID {
		at, ok := s.TerminatedAt()
		if !ok || now.Sub(at) < m.cfg.TerminatedRetention {
			continue
		}
		if s.subscriptions.DrainPublishRequests(now, ua.StatusBadSessionClosed) > 0 ||
			s.subscriptions.PendingResponses() > 0 {
			continue
		}
		s.subscriptions.DeleteAll()
		delete(m.byID, id)
		delete(m.byToken, key(s.authToken))
		purged++
	}
	return expired, purged
}

// Tick drives every session's subscription engine, drops continuation
// points invalidated by address space changes and collects the finished
// publish responses, including those of sessions terminated since the
// last tick.
func (m *Manager) Tick(as *addressspace.AddressSpace, now time.Time) []Delivery {
	var out []Delivery
	for _, s := range m.snapshot() {
		if !s.IsTerminated() {
			s.subscriptions.Tick(as, now)
			if as != nil {
				as.RLock()
				s.RemoveExpiredContinuationPoints(as)
				as.RUnlock()
			}
		}
		if results := s.subscriptions.TakeResponses(); len(results) > 0 {
			out = append(out, Delivery{Session: s, Results: results})
		}
	}
	return out
}

// AddContinuationPoint stores cp on s and accounts evictions.
func (m *Manager) AddContinuationPoint(s *Session, cp BrowseContinuationPoint) {
	if n := s.AddContinuationPoint(cp); n > 0 {
		m.metrics.recordEvicted(n)
		logger.Debug("Continuation points evicted",
			logger.KeySessionID, s.id.String(),
			logger.KeyEvicted, n)
	}
}
