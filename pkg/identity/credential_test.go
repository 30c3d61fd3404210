package identity

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	password := "test-password-123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
		t.Errorf("HashPassword() hash = %q, want bcrypt format", hash)
	}
	if !VerifyPassword(password, hash) {
		t.Error("VerifyPassword() returned false for correct password")
	}
	if VerifyPassword("wrong-password", hash) {
		t.Error("VerifyPassword() returned true for wrong password")
	}
}

func TestHashPassword_DifferentHashes(t *testing.T) {
	hash1, _ := HashPasswordWithCost("same-password", bcrypt.MinCost)
	hash2, _ := HashPasswordWithCost("same-password", bcrypt.MinCost)

	if hash1 == hash2 {
		t.Error("expected different hashes due to salt")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"too short", "short", "at least 8"},
		{"minimum length", "12345678", ""},
		{"maximum length", strings.Repeat("a", MaxPasswordLength), ""},
		{"too long", strings.Repeat("a", MaxPasswordLength+1), "at most 72"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidatePassword() = %v, want nil", err)
				}
				return
			}
			var perr *PasswordPolicyError
			if !errors.As(err, &perr) {
				t.Fatalf("ValidatePassword() = %v, want *PasswordPolicyError", err)
			}
			if perr.Length != len(tt.password) {
				t.Errorf("Length = %d, want %d", perr.Length, len(tt.password))
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidatePassword() = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestHashPassword_RejectsPolicyViolation(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("HashPassword() accepted a short password")
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := HashPasswordWithCost("password123", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !NeedsRehash(weak) {
		t.Error("NeedsRehash() = false for a min-cost hash")
	}
	if !NeedsRehash("not-a-hash") {
		t.Error("NeedsRehash() = false for garbage")
	}
}
