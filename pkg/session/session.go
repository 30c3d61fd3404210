package session

import (
	"sort"
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/securechannel"
	"github.com/marmos91/opcuad/pkg/subscription"
)

// State is a session's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateActivated
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActivated:
		return "activated"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ServiceCounter counts calls of one service and how many failed.
type ServiceCounter struct {
	Total  uint64 `json:"total" yaml:"total"`
	Errors uint64 `json:"errors" yaml:"errors"`
}

// Session is the server-side state of one client session.
//
// The lifecycle flags, counters and continuation points are guarded by
// the session's own mutex. The subscription engine has its own lock.
type Session struct {
	mu sync.Mutex

	id        *ua.NodeID
	authToken *ua.NodeID

	name                   string
	endpointURL            string
	clientURI              string
	clientAddr             string
	timeout                time.Duration
	maxRequestMessageSize  uint32
	maxResponseMessageSize uint32
	clientCertificate      []byte
	nonce                  []byte

	user         *identity.User
	activated    bool
	terminated   bool
	terminatedAt time.Time
	createdAt    time.Time
	lastActivity time.Time

	channel            *securechannel.SecureChannel
	subscriptions      *subscription.Subscriptions
	continuationPoints *ContinuationPointStore

	services      map[string]*ServiceCounter
	requests      uint64
	errors        uint64
	unauthorized  uint64
	evictedPoints uint64
}

func (s *Session) ID() *ua.NodeID                             { return s.id }
func (s *Session) AuthenticationToken() *ua.NodeID            { return s.authToken }
func (s *Session) Name() string                               { return s.name }
func (s *Session) EndpointURL() string                        { return s.endpointURL }
func (s *Session) Timeout() time.Duration                     { return s.timeout }
func (s *Session) MaxRequestMessageSize() uint32              { return s.maxRequestMessageSize }
func (s *Session) MaxResponseMessageSize() uint32             { return s.maxResponseMessageSize }
func (s *Session) ClientCertificate() []byte                  { return s.clientCertificate }
func (s *Session) CreatedAt() time.Time                       { return s.createdAt }
func (s *Session) Channel() *securechannel.SecureChannel      { return s.channel }
func (s *Session) Subscriptions() *subscription.Subscriptions { return s.subscriptions }

// Nonce returns a copy of the current server nonce.
func (s *Session) Nonce() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.nonce...)
}

// User returns the identity the session was activated with, or nil.
func (s *Session) User() *identity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *Session) state() State {
	switch {
	case s.terminated:
		return StateTerminated
	case s.activated:
		return StateActivated
	default:
		return StateCreated
	}
}

// IsActivated reports whether ActivateSession succeeded at least once.
func (s *Session) IsActivated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activated
}

// IsTerminated reports whether the session was terminated. A terminated
// session stays addressable until purged but must not serve requests.
func (s *Session) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// TerminatedAt returns the termination instant; ok is false if the
// session is not terminated.
func (s *Session) TerminatedAt() (t time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminatedAt, s.terminated
}

// activate marks the session activated for user and installs a fresh
// server nonce.
func (s *Session) activate(user *identity.User, nonce []byte, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.nonce = nonce
	s.activated = true
	s.lastActivity = now
}

// Terminate marks the session terminated at now. Only the first call has
// an effect; it returns true for that call. Queued publish requests are not
// answered here, the caller drains them.
func (s *Session) Terminate(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	s.terminatedAt = now
	return true
}

// Touch records client activity, postponing the idle timeout.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// LastActivity returns the time of the last request.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IsExpired reports whether a live session has been idle longer than its
// timeout.
func (s *Session) IsExpired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.terminated && now.Sub(s.lastActivity) > s.timeout
}

// RecordRequest counts one service call and its outcome.
func (s *Session) RecordRequest(service string, status ua.StatusCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.services[service]
	if !ok {
		c = &ServiceCounter{}
		s.services[service] = c
	}
	c.Total++
	s.requests++
	if status != ua.StatusOK {
		c.Errors++
		s.errors++
		if status == ua.StatusBadUserAccessDenied || status == ua.StatusBadIdentityTokenRejected {
			s.unauthorized++
		}
	}
}

// AddContinuationPoint stores cp, evicting the oldest entries beyond the
// session's bound. It returns the number evicted.
func (s *Session) AddContinuationPoint(cp BrowseContinuationPoint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.continuationPoints.Add(cp)
	s.evictedPoints += uint64(n)
	return n
}

// FindContinuationPoint returns a copy of a stored continuation point.
func (s *Session) FindContinuationPoint(id []byte) (BrowseContinuationPoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuationPoints.Find(id)
}

// RemoveContinuationPoint releases one continuation point.
func (s *Session) RemoveContinuationPoint(id []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuationPoints.Remove(id)
}

// RemoveContinuationPoints releases a set of continuation points.
func (s *Session) RemoveContinuationPoints(ids [][]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuationPoints.RemoveMany(ids)
}

// RemoveExpiredContinuationPoints drops continuation points whose node
// changed or disappeared. Requires the address space read lock.
func (s *Session) RemoveExpiredContinuationPoints(as *addressspace.AddressSpace) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuationPoints.RemoveExpired(as)
}

// ReleaseContinuationPoints drops every continuation point.
func (s *Session) ReleaseContinuationPoints() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuationPoints.Clear()
}

// ContinuationPointCount returns the number of live continuation points.
func (s *Session) ContinuationPointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuationPoints.Len()
}

// Diagnostics is a read-only snapshot of a session.
type Diagnostics struct {
	SessionID              string                    `json:"session_id" yaml:"session_id"`
	Name                   string                    `json:"name" yaml:"name"`
	EndpointURL            string                    `json:"endpoint_url" yaml:"endpoint_url"`
	ClientURI              string                    `json:"client_uri,omitempty" yaml:"client_uri,omitempty"`
	ClientAddr             string                    `json:"client_addr,omitempty" yaml:"client_addr,omitempty"`
	State                  string                    `json:"state" yaml:"state"`
	User                   string                    `json:"user,omitempty" yaml:"user,omitempty"`
	CreatedAt              time.Time                 `json:"created_at" yaml:"created_at"`
	LastActivity           time.Time                 `json:"last_activity" yaml:"last_activity"`
	TerminatedAt           *time.Time                `json:"terminated_at,omitempty" yaml:"terminated_at,omitempty"`
	Timeout                time.Duration             `json:"timeout" yaml:"timeout"`
	MaxRequestMessageSize  uint32                    `json:"max_request_message_size" yaml:"max_request_message_size"`
	MaxResponseMessageSize uint32                    `json:"max_response_message_size" yaml:"max_response_message_size"`
	ChannelID              uint32                    `json:"channel_id" yaml:"channel_id"`
	SecurityPolicy         string                    `json:"security_policy" yaml:"security_policy"`
	ContinuationPoints     int                       `json:"continuation_points" yaml:"continuation_points"`
	EvictedPoints          uint64                    `json:"evicted_continuation_points" yaml:"evicted_continuation_points"`
	Subscriptions          subscription.Stats        `json:"subscriptions" yaml:"subscriptions"`
	SubscriptionList       []subscription.Info       `json:"subscription_list,omitempty" yaml:"subscription_list,omitempty"`
	Requests               uint64                    `json:"requests" yaml:"requests"`
	Errors                 uint64                    `json:"errors" yaml:"errors"`
	UnauthorizedRequests   uint64                    `json:"unauthorized_requests" yaml:"unauthorized_requests"`
	Services               map[string]ServiceCounter `json:"services,omitempty" yaml:"services,omitempty"`
}

// Diagnostics returns a snapshot. It has no side effects.
func (s *Session) Diagnostics() Diagnostics {
	s.mu.Lock()
	d := Diagnostics{
		SessionID:              s.id.String(),
		Name:                   s.name,
		EndpointURL:            s.endpointURL,
		ClientURI:              s.clientURI,
		ClientAddr:             s.clientAddr,
		State:                  s.state().String(),
		CreatedAt:              s.createdAt,
		LastActivity:           s.lastActivity,
		Timeout:                s.timeout,
		MaxRequestMessageSize:  s.maxRequestMessageSize,
		MaxResponseMessageSize: s.maxResponseMessageSize,
		ContinuationPoints:     s.continuationPoints.Len(),
		EvictedPoints:          s.evictedPoints,
		Requests:               s.requests,
		Errors:                 s.errors,
		UnauthorizedRequests:   s.unauthorized,
		Services:               make(map[string]ServiceCounter, len(s.services)),
	}
	if s.user != nil {
		d.User = s.user.Name
	}
	if s.terminated {
		t := s.terminatedAt
		d.TerminatedAt = &t
	}
	for name, c := range s.services {
		d.Services[name] = *c
	}
	s.mu.Unlock()

	d.ChannelID = s.channel.ID()
	d.SecurityPolicy = s.channel.PolicyURI()
	d.Subscriptions = s.subscriptions.Stats()
	d.SubscriptionList = s.subscriptions.List()
	return d
}

// sortDiagnostics orders snapshots by creation time, then id.
func sortDiagnostics(ds []Diagnostics) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].CreatedAt.Before(ds[j].CreatedAt)
		}
		return ds[i].SessionID < ds[j].SessionID
	})
}
