package identity

import (
	"sort"
	"sync"
)

// UserStore holds the configured users. It is read-only after
// construction apart from Replace, which swaps the whole set on config
// reload.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewUserStore indexes users by name.
func NewUserStore(users []User) (*UserStore, error) {
	s := &UserStore{}
	if err := s.Replace(users); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace validates users and swaps them in atomically. On error the
// previous set is kept.
func (s *UserStore) Replace(users []User) error {
	indexed := make(map[string]*User, len(users))
	for i := range users {
		u := users[i]
		if err := u.Validate(); err != nil {
			return err
		}
		if _, exists := indexed[u.Name]; exists {
			return ErrDuplicateUser
		}
		indexed[u.Name] = &u
	}

	s.mu.Lock()
	s.users = indexed
	s.mu.Unlock()
	return nil
}

// GetUser returns a user by name.
func (s *UserStore) GetUser(name string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[name]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ValidateCredentials verifies a name/password pair.
func (s *UserStore) ValidateCredentials(name, password string) (*User, error) {
	s.mu.RLock()
	user, ok := s.users[name]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.Enabled {
		return nil, ErrUserDisabled
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Names returns the sorted user names.
func (s *UserStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
