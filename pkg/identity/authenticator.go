// Package identity validates the user identity tokens presented on
// ActivateSession and maps failures to OPC UA status codes.
package identity

import (
	"errors"

	"github.com/gopcua/opcua/ua"
)

// Token kinds, used in logs and the audit log.
const (
	KindAnonymous = "anonymous"
	KindUserName  = "username"
	KindIssued    = "issued"
	KindX509      = "x509"
)

// Config selects which identity tokens the server accepts.
type Config struct {
	AllowAnonymous bool              `json:"allow_anonymous" yaml:"allow_anonymous" mapstructure:"allow_anonymous"`
	Users          []User            `json:"users,omitempty" yaml:"users,omitempty" mapstructure:"users" validate:"dive"`
	Issued         IssuedTokenConfig `json:"issued" yaml:"issued" mapstructure:"issued"`
}

// Authenticator turns an identity token into a User.
type Authenticator struct {
	allowAnonymous bool
	users          *UserStore
	issued         *TokenValidator
}

// NewAuthenticator builds an authenticator from cfg.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	users, err := NewUserStore(cfg.Users)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{allowAnonymous: cfg.AllowAnonymous, users: users}
	if cfg.Issued.Enabled {
		if a.issued, err = NewTokenValidator(cfg.Issued); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Users exposes the configured user store.
func (a *Authenticator) Users() *UserStore { return a.users }

// Kind names the kind of token carried by an extension object.
func Kind(token *ua.ExtensionObject) string {
	if token == nil || token.Value == nil {
		return KindAnonymous
	}
	switch token.Value.(type) {
	case *ua.AnonymousIdentityToken:
		return KindAnonymous
	case *ua.UserNameIdentityToken:
		return KindUserName
	case *ua.IssuedIdentityToken:
		return KindIssued
	case *ua.X509IdentityToken:
		return KindX509
	default:
		return "unknown"
	}
}

// Authenticate validates token. A nil token is treated as anonymous.
//
// Errors are ua.StatusCode values:
//   - BadIdentityTokenInvalid: the token is malformed or of an unsupported kind
//   - BadIdentityTokenRejected: the token is well formed but not accepted
//   - BadUserAccessDenied: the credentials are wrong or the user is disabled
func (a *Authenticator) Authenticate(token *ua.ExtensionObject) (*User, error) {
	if token == nil || token.Value == nil {
		return a.anonymous()
	}

	switch t := token.Value.(type) {
	case *ua.AnonymousIdentityToken:
		return a.anonymous()
	case *ua.UserNameIdentityToken:
		return a.userName(t)
	case *ua.IssuedIdentityToken:
		return a.issuedToken(t)
	default:
		return nil, ua.StatusBadIdentityTokenInvalid
	}
}

func (a *Authenticator) anonymous() (*User, error) {
	if !a.allowAnonymous {
		return nil, ua.StatusBadIdentityTokenRejected
	}
	return anonymousUser(), nil
}

func (a *Authenticator) userName(t *ua.UserNameIdentityToken) (*User, error) {
	// Encrypted secrets are not supported.
	if t.UserName == "" || t.EncryptionAlgorithm != "" {
		return nil, ua.StatusBadIdentityTokenInvalid
	}

	user, err := a.users.ValidateCredentials(t.UserName, string(t.Password))
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUserDisabled) {
			return nil, ua.StatusBadUserAccessDenied
		}
		return nil, err
	}
	return user, nil
}

func (a *Authenticator) issuedToken(t *ua.IssuedIdentityToken) (*User, error) {
	if a.issued == nil || len(t.TokenData) == 0 || t.EncryptionAlgorithm != "" {
		return nil, ua.StatusBadIdentityTokenInvalid
	}

	claims, err := a.issued.Validate(string(t.TokenData))
	if err != nil {
		return nil, ua.StatusBadIdentityTokenRejected
	}
	return &User{Name: claims.Subject, Enabled: true, Roles: claims.Roles, Issued: true}, nil
}
