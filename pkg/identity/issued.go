package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("issued token secret must be at least 32 characters")
)

const (
	// DefaultIssuer is the expected iss claim when none is configured.
	DefaultIssuer = "opcuad"

	// MinSecretLength is the shortest accepted HMAC secret.
	MinSecretLength = 32
)

// IssuedTokenConfig configures validation of IssuedIdentityTokens carrying
// HMAC-signed JWTs.
type IssuedTokenConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Secret  string `json:"-" yaml:"secret" mapstructure:"secret"`
	Issuer  string `json:"issuer" yaml:"issuer" mapstructure:"issuer"`
}

// Claims are the JWT claims of an issued identity token.
type Claims struct {
	jwt.RegisteredClaims

	Roles []string `json:"roles,omitempty"`
}

// TokenValidator signs and validates issued identity tokens.
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator checks cfg and returns a validator.
func NewTokenValidator(cfg IssuedTokenConfig) (*TokenValidator, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	return &TokenValidator{secret: []byte(cfg.Secret), issuer: cfg.Issuer}, nil
}

// Sign issues a token for subject valid for ttl from now.
func (v *TokenValidator) Sign(subject string, roles []string, now time.Time, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

// Validate parses and verifies a token string.
func (v *TokenValidator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
