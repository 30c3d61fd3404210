package securechannel

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCertificateInvalid is returned for a client certificate that cannot
	// be parsed.
	ErrCertificateInvalid = errors.New("client certificate invalid")

	// ErrCertificateTimeInvalid is returned for a client certificate outside
	// its validity period.
	ErrCertificateTimeInvalid = errors.New("client certificate expired or not yet valid")
)

// CertificateStore holds the server's application instance certificate and
// private key.
type CertificateStore struct {
	certificate *x509.Certificate
	der         []byte
	key         crypto.PrivateKey
}

// LoadCertificateStore reads a PEM certificate and key pair.
func LoadCertificateStore(certFile, keyFile string) (*CertificateStore, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	if len(pair.Certificate) == 0 {
		return nil, fmt.Errorf("no certificate in %s", certFile)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}
	return &CertificateStore{certificate: cert, der: pair.Certificate[0], key: pair.PrivateKey}, nil
}

// NewEmptyCertificateStore returns a store with no certificate, used when
// only SecurityPolicy None endpoints are exposed.
func NewEmptyCertificateStore() *CertificateStore {
	return &CertificateStore{}
}

// Certificate returns the DER encoded server certificate, or nil.
func (s *CertificateStore) Certificate() []byte {
	if s == nil {
		return nil
	}
	return s.der
}

// Subject returns the certificate subject for diagnostics.
func (s *CertificateStore) Subject() string {
	if s == nil || s.certificate == nil {
		return ""
	}
	return s.certificate.Subject.String()
}

// ValidateClientCertificate checks that a DER client certificate parses
// and is inside its validity period. An empty certificate is accepted.
func (s *CertificateStore) ValidateClientCertificate(der []byte, now time.Time) error {
	if len(der) == 0 {
		return nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCertificateInvalid, err)
	}
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return ErrCertificateTimeInvalid
	}
	return nil
}
