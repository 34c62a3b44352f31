// Package app assembles the client: identity cache, access policy,
// navigator, traffic guard and API client, all sharing one cache.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"sharedledger.org/internal/access"
	"sharedledger.org/internal/api"
	"sharedledger.org/internal/audit"
	"sharedledger.org/internal/config"
	"sharedledger.org/internal/credential"
	"sharedledger.org/internal/guard"
	"sharedledger.org/internal/identity"
	"sharedledger.org/internal/ids"
	"sharedledger.org/internal/nav"
	"sharedledger.org/internal/obs"
	"sharedledger.org/internal/session"
	"sharedledger.org/internal/transport"
)

// App holds the wired client components.
type App struct {
	Config      *config.Config
	ClientID    string
	Cache       *identity.Cache
	Credentials *credential.Store
	Client      *api.Client
	Policy      *access.Policy
	Navigator   *nav.Navigator
	Session     *session.Service
	HTTP        *http.Client
}

type options struct {
	base      http.RoundTripper
	persister credential.Persister
	logger    *zap.Logger
}

type Option func(*options)

// WithBaseTransport sets the innermost RoundTripper (tests pass the
// httptest server's transport).
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithPersister overrides the credentials file derived from config.
func WithPersister(p credential.Persister) Option {
	return func(o *options) { o.persister = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wires the client from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	o := options{logger: obs.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.persister == nil && cfg.CredentialsFile != "" {
		fs, err := credential.NewFileStore(cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		o.persister = fs
	}

	a := &App{
		Config:      cfg,
		ClientID:    ids.NewClientID(),
		Credentials: credential.NewStore(o.persister),
		HTTP:        &http.Client{},
	}

	// The API client holds a.HTTP by pointer; its transport is installed
	// below, once the guard's collaborators exist.
	client, err := api.New(cfg.APIURL, a.HTTP)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.Client = client

	logger := o.logger
	a.Cache = identity.NewCache(client,
		identity.WithLogger(logger),
		identity.WithObserver(func(t identity.Transition) { onTransition(logger, t) }),
	)
	a.Policy = access.NewPolicy(a.Cache, client,
		access.WithLoginPath(cfg.LoginPath),
		access.WithLogger(logger),
	)
	a.Navigator = nav.New(a.Policy, nav.WithLogger(logger))

	chain := transport.Chain(o.base,
		transport.RequestID(),
		transport.ClientID(a.ClientID),
		transport.Observe(logger),
		transport.RateLimit(cfg.RatePerSecond, cfg.RateBurst),
		transport.Bearer(cfg.BearerToken),
	)
	a.HTTP.Transport = guard.New(chain, a.Cache,
		guard.WithRules(guard.DefaultRules(cfg.LoginPath)),
		guard.WithCredentials(a.Credentials),
		guard.WithNavigator(a.Navigator),
		guard.WithLogger(logger),
	)

	a.Session = session.NewService(client, a.Cache,
		session.WithCredentials(a.Credentials),
		session.WithLogger(logger),
	)
	return a, nil
}

// Whoami resolves the current identity through the cache.
func (a *App) Whoami(ctx context.Context) (identity.Identity, error) {
	return a.Cache.Current(ctx)
}

func onTransition(logger *zap.Logger, t identity.Transition) {
	if !t.Changed() {
		return
	}
	logger.Info("identity.transition",
		zap.Stringer("from", t.From),
		zap.Stringer("to", t.To),
		zap.String("cause", string(t.Cause)),
		zap.Uint64("seq", t.Seq),
		zap.Int64("user_id", t.Identity.ID),
	)
	if t.From == identity.StateAuthenticated && t.Cause == identity.CauseInvalidate {
		_ = audit.LogEvent(context.Background(), audit.EventInvalidated, map[string]any{"from": t.From.String()})
	}
}
