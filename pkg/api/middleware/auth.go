// Package middleware guards the administrative routes of the diagnostics
// API with issued identity tokens.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/marmos91/opcuad/pkg/identity"
)

type claimsKey struct{}

// GetClaimsFromContext returns the token claims stored by BearerAuth, or
// nil on unguarded routes.
func GetClaimsFromContext(ctx context.Context) *identity.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*identity.Claims)
	return claims
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// deny writes the API error envelope.
func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Error     string    `json:"error"`
	}{"error", time.Now().UTC(), msg})
}

// BearerAuth admits requests carrying a token that tokens validates and
// stores its claims in the request context. Missing or invalid tokens get
// 401. With tokens nil, issued tokens are disabled and every request gets
// 403.
func BearerAuth(tokens *identity.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				deny(w, http.StatusForbidden, "administrative access is disabled (identity.issued.enabled is false)")
				return
			}
			raw := bearerToken(r)
			if raw == "" {
				deny(w, http.StatusUnauthorized, "bearer token required")
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// RequireRole admits tokens whose roles include role. It must run after
// BearerAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			switch {
			case claims == nil:
				deny(w, http.StatusUnauthorized, "bearer token required")
			case !slices.Contains(claims.Roles, role):
				deny(w, http.StatusForbidden, "role "+role+" required")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
