package identity

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// AnonymousName is the user name reported for anonymous sessions.
const AnonymousName = "anonymous"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is an identity a session can be activated with.
type User struct {
	// Name is the unique user name clients present in a UserNameIdentityToken.
	Name string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `json:"-" yaml:"password_hash" mapstructure:"password_hash" validate:"required"`

	// Enabled indicates whether the account may activate sessions.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Roles are informational labels surfaced in diagnostics and the audit log.
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty" mapstructure:"roles"`

	// Anonymous is set on the synthetic user of an anonymous activation.
	Anonymous bool `json:"anonymous,omitempty" yaml:"-" mapstructure:"-"`

	// Issued is set when the user came from a validated issued token.
	Issued bool `json:"issued,omitempty" yaml:"-" mapstructure:"-"`
}

// Validate checks a configured user.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return errors.New("user name is required")
	}
	if u.Name == AnonymousName {
		return fmt.Errorf("user name %q is reserved", AnonymousName)
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("user %q: password_hash is required", u.Name)
	}
	return nil
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// anonymousUser returns the user of an anonymous activation.
func anonymousUser() *User {
	return &User{Name: AnonymousName, Enabled: true, Anonymous: true}
}
