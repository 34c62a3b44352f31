// Package session ties authentication calls to the identity cache and the
// credential store so the cache reflects every successful session change.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sharedledger.org/internal/api"
	"sharedledger.org/internal/audit"
	"sharedledger.org/internal/identity"
	"sharedledger.org/internal/obs"
)

// Backend is the subset of api.Client the service drives.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (identity.Identity, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, reg api.Registration) (api.User, error)
	UpdateProfile(ctx context.Context, upd api.ProfileUpdate) (identity.Identity, error)
}

// Cache is the identity cell the service writes to.
type Cache interface {
	Set(id identity.Identity)
	Invalidate()
}

// CredentialStore drops the persisted session on logout.
type CredentialStore interface {
	Clear() error
}

type Service struct {
	backend     Backend
	cache       Cache
	credentials CredentialStore
	logger      *zap.Logger
}

type Option func(*Service)

func WithCredentials(c CredentialStore) Option {
	return func(s *Service) { s.credentials = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(backend Backend, cache Cache, opts ...Option) *Service {
	s := &Service{backend: backend, cache: cache, logger: obs.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates and publishes the returned user to the cache.
// The session cookie is captured by the transport.
func (s *Service) Login(ctx context.Context, email, password string) (identity.Identity, error) {
	id, err := s.backend.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		_ = audit.LogEvent(ctx, audit.EventLoginFailed, map[string]any{"status": api.StatusOf(err)})
		return identity.Identity{}, fmt.Errorf("login: %w", err)
	}
	id.Authenticated = true
	s.cache.Set(id)
	_ = audit.LogEvent(audit.WithUserID(ctx, id.ID), audit.EventLogin, nil)
	return id, nil
}

// Logout ends the session. The local session is dropped even when the
// server call fails; the server error is still returned.
func (s *Service) Logout(ctx context.Context) error {
	err := s.backend.Logout(ctx)
	s.cache.Invalidate()
	if s.credentials != nil {
		if cerr := s.credentials.Clear(); cerr != nil {
			s.logger.Warn("session.logout: clear credentials", zap.Error(cerr))
		}
	}
	_ = audit.LogEvent(ctx, audit.EventLogout, map[string]any{"server_ok": err == nil})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Register creates an account without logging in.
func (s *Service) Register(ctx context.Context, reg api.Registration) (api.User, error) {
	u, err := s.backend.Register(ctx, reg)
	if err != nil {
		return api.User{}, fmt.Errorf("register: %w", err)
	}
	_ = audit.LogEvent(audit.WithUserID(ctx, u.ID), audit.EventRegister, nil)
	return u, nil
}

// UpdateProfile saves profile changes and publishes the updated user.
func (s *Service) UpdateProfile(ctx context.Context, upd api.ProfileUpdate) (identity.Identity, error) {
	id, err := s.backend.UpdateProfile(ctx, upd)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("update profile: %w", err)
	}
	id.Authenticated = true
	s.cache.Set(id)
	_ = audit.LogEvent(audit.WithUserID(ctx, id.ID), audit.EventProfileUpdate, nil)
	return id, nil
}
