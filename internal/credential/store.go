// Package credential holds the session credential of a client process and
// optionally persists it between runs.
package credential

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"sharedledger.org/internal/obs"
)

// CookieName is the session cookie the server issues.
const CookieName = "SESSION"

// ErrNotLoggedIn is returned by a Persister holding no credentials.
var ErrNotLoggedIn = errors.New("credential: not logged in")

// Credentials is the persisted session state.
type Credentials struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the token is known to be past its expiry.
// Tokens without a readable expiry never expire client-side.
func (c Credentials) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// Persister saves credentials across process runs.
type Persister interface {
	Save(creds *Credentials) error
	Load() (*Credentials, error)
	Delete() error
}

// Store is the in-memory session credential, written through to an
// optional Persister.
type Store struct {
	persist Persister

	mu    sync.RWMutex
	creds Credentials
}

// NewStore loads any persisted credentials. p may be nil.
func NewStore(p Persister) *Store {
	s := &Store{persist: p}
	if p == nil {
		return s
	}
	creds, err := p.Load()
	switch {
	case err == nil && creds != nil:
		s.creds = *creds
	case err != nil && !errors.Is(err, ErrNotLoggedIn):
		obs.Logger().Warn("credential.load", zap.Error(err))
	}
	return s
}

// SessionToken returns the current token, or "" when none is held or it has expired.
func (s *Store) SessionToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.IsExpired() {
		return ""
	}
	return s.creds.SessionToken
}

// Snapshot returns a copy of the held credentials.
func (s *Store) Snapshot() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Set replaces the session token. Expiry is read from the token's exp claim
// when it is a JWT; the signature is not checked here, the server does that.
func (s *Store) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return s.Clear()
	}
	creds := Credentials{SessionToken: token, ExpiresAt: expiryOf(token)}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	if s.persist != nil {
		return s.persist.Save(&creds)
	}
	return nil
}

// Clear drops the session token.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.creds = Credentials{}
	s.mu.Unlock()

	if s.persist != nil {
		return s.persist.Delete()
	}
	return nil
}

// Capture applies Set-Cookie headers for the session cookie, the way a
// browser cookie jar would.
func (s *Store) Capture(cookies []*http.Cookie) {
	for _, c := range cookies {
		if c.Name != CookieName {
			continue
		}
		var err error
		if c.MaxAge < 0 || c.Value == "" {
			err = s.Clear()
		} else {
			err = s.Set(c.Value)
		}
		if err != nil {
			obs.Logger().Warn("credential.capture", zap.Error(err))
		}
	}
}

func expiryOf(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
