package auth

import (
	"context"
	"fmt"
	"maps"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// User is a registered account.
type User struct {
	ID           int64
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
	Profile      map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Users is an in-memory account store keyed by id and email.
type Users struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*User
	byEmail map[string]int64
}

func NewUsers() *Users {
	return &Users{byID: make(map[int64]*User), byEmail: make(map[string]int64)}
}

// Register validates input, hashes the password and stores a new user.
func (s *Users) Register(ctx context.Context, email, displayName, password string) (User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return User{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return User{}, ErrAlreadyExists
	}
	s.nextID++
	now := time.Now().UTC()
	u := &User{
		ID:           s.nextID,
		Email:        email,
		DisplayName:  displayName,
		Role:         "member",
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return copyUser(u), nil
}

// Authenticate returns the user when the password matches.
func (s *Users) Authenticate(ctx context.Context, email, password string) (User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var u *User
	if ok {
		u = s.byID[id]
	}
	s.mu.RUnlock()
	if u == nil {
		return User{}, ErrUnauthorized
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrUnauthorized
	}
	return copyUser(u), nil
}

func (s *Users) Find(ctx context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return copyUser(u), nil
}

// ProfileChange lists the fields to update; nil fields are left alone.
type ProfileChange struct {
	DisplayName *string
	Email       *string
	Profile     map[string]any
}

func (s *Users) UpdateProfile(ctx context.Context, id int64, ch ProfileChange) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	next := *u
	if ch.DisplayName != nil {
		name := strings.TrimSpace(*ch.DisplayName)
		if name == "" {
			return User{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
		}
		next.DisplayName = name
	}
	if ch.Email != nil {
		email := normalizeEmail(*ch.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return User{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
		if other, taken := s.byEmail[email]; taken && other != id {
			return User{}, ErrAlreadyExists
		}
		delete(s.byEmail, u.Email)
		s.byEmail[email] = id
		next.Email = email
	}
	if ch.Profile != nil {
		next.Profile = maps.Clone(ch.Profile)
	}
	next.UpdatedAt = time.Now().UTC()
	s.byID[id] = &next
	return copyUser(&next), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u *User) User {
	out := *u
	out.Profile = maps.Clone(u.Profile)
	return out
}
