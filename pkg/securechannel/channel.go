// Package securechannel models the binding between an application session
// and the secure channel it runs over. The cryptographic handshake and
// message protection live in the transport; this package only tracks
// which channel a session is bound to and produces nonces.
package securechannel

import (
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// SecurityPolicyNone is the policy URI for unsecured channels.
const SecurityPolicyNone = "http://opcfoundation.org/UA/SecurityPolicy#None"

// NonceLength is the server nonce size handed out on CreateSession and
// ActivateSession.
const NonceLength = 32

var lastChannelID atomic.Uint32

// SecureChannel is one session's channel binding.
type SecureChannel struct {
	mu sync.Mutex

	id             uint32
	policyURI      string
	store          *CertificateStore
	clientCert     []byte
	boundAt        time.Time
	releasedAt     time.Time
	released       bool
	rebindingCount int
}

// New binds a fresh channel using the server's certificate store.
func New(store *CertificateStore, policyURI string, clientCert []byte, now time.Time) *SecureChannel {
	if policyURI == "" {
		policyURI = SecurityPolicyNone
	}
	return &SecureChannel{
		id:         lastChannelID.Add(1),
		policyURI:  policyURI,
		store:      store,
		clientCert: clientCert,
		boundAt:    now,
	}
}

// ID returns the channel currently carrying the session.
func (c *SecureChannel) ID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *SecureChannel) PolicyURI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policyURI
}

func (c *SecureChannel) Store() *CertificateStore  { return c.store }
func (c *SecureChannel) ClientCertificate() []byte { return c.clientCert }

// Rebinds returns how many times the session moved to a new channel.
func (c *SecureChannel) Rebinds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebindingCount
}

// Rebind moves the binding to a new transport channel, as happens when a
// client reconnects and reactivates its session.
func (c *SecureChannel) Rebind(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = lastChannelID.Add(1)
	c.boundAt = now
	c.released = false
	c.rebindingCount++
}

// Release drops the binding. Releasing twice is a no-op.
func (c *SecureChannel) Release(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.releasedAt = now
}

// Released reports whether the binding was dropped.
func (c *SecureChannel) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// CreateNonce returns NonceLength random bytes.
func CreateNonce() ([]byte, error) {
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}
