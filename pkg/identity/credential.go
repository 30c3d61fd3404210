package identity

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the cost of hashes written by HashPassword.
// Configured hashes below it are reported by "opcuad config validate".
const DefaultBcryptCost = 10

// Password length bounds. bcrypt ignores input past 72 bytes, so longer
// passwords would verify against their own prefix.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// PasswordPolicyError reports a password outside the length bounds.
type PasswordPolicyError struct {
	Length int
}

func (e *PasswordPolicyError) Error() string {
	if e.Length < MinPasswordLength {
		return fmt.Sprintf("password must be at least %d characters", MinPasswordLength)
	}
	return fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength)
}

// ValidatePassword enforces the length bounds. Its signature fits a
// prompt validator.
func ValidatePassword(password string) error {
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return &PasswordPolicyError{Length: n}
	}
	return nil
}

// HashPassword returns the bcrypt hash stored in identity.users.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultBcryptCost)
}

// HashPasswordWithCost hashes with an explicit bcrypt cost. Tests use
// bcrypt.MinCost.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash. A malformed hash
// never matches.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash is unreadable or cheaper than
// DefaultBcryptCost.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost < DefaultBcryptCost
}
