// Package nav is the client-side router: it resolves a target path to an
// access class, asks the policy, and either activates the route or follows
// the redirect.
package nav

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"sharedledger.org/internal/access"
	"sharedledger.org/internal/guard"
	"sharedledger.org/internal/obs"
)

// ReturnURLKey carries the originally requested target on a login redirect.
const ReturnURLKey = "returnUrl"

// Evaluator decides whether a route may activate; access.Policy satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, route access.Route) access.Verdict
	LoginPath() string
}

// Outcome describes one navigation.
type Outcome struct {
	Requested  string
	Location   string
	Route      access.Route
	Redirected bool
}

// Navigator owns the current location. It is safe for concurrent use.
type Navigator struct {
	table  *Table
	policy Evaluator
	logger *zap.Logger

	mu       sync.RWMutex
	location *url.URL
	history  []string
}

type Option func(*Navigator)

func WithTable(t *Table) Option {
	return func(n *Navigator) {
		if t != nil {
			n.table = t
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(n *Navigator) {
		if l != nil {
			n.logger = l
		}
	}
}

// New starts at "/".
func New(policy Evaluator, opts ...Option) *Navigator {
	n := &Navigator{
		table:    DefaultTable(),
		policy:   policy,
		logger:   obs.Logger(),
		location: &url.URL{Path: "/"},
	}
	for _, opt := range opts {
		opt(n)
	}
	n.history = []string{n.location.String()}
	return n
}

// Location returns a copy of the current location.
func (n *Navigator) Location() *url.URL {
	n.mu.RLock()
	defer n.mu.RUnlock()
	u := *n.location
	return &u
}

// History lists every location visited, oldest first.
func (n *Navigator) History() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.history...)
}

// Redirect moves to path unconditionally. The traffic guard uses it for
// its login redirect, which bypasses route evaluation.
func (n *Navigator) Redirect(path string) {
	u, err := url.Parse(path)
	if err != nil {
		u = &url.URL{Path: path}
	}
	n.moveTo(u)
	n.logger.Info("navigator redirect", zap.String("location", u.String()))
}

// Navigate evaluates target and activates it or follows the redirect verdict.
// A redirect to the login route carries the original target as returnUrl.
func (n *Navigator) Navigate(ctx context.Context, target string) (Outcome, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Outcome{}, fmt.Errorf("nav: parse %q: %w", target, err)
	}
	route, err := n.table.Classify(u.Path)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Requested: u.String(), Route: route}
	if route.Class == access.ClassResource {
		ctx = access.WithShareToken(ctx, u.Query().Get(guard.BypassTokenKey))
	}
	verdict := n.policy.Evaluate(ctx, route)
	if redirect, ok := verdict.Redirect(); ok {
		dest, err := url.Parse(redirect)
		if err != nil {
			return Outcome{}, fmt.Errorf("nav: parse redirect %q: %w", redirect, err)
		}
		if dest.Path == n.policy.LoginPath() {
			q := dest.Query()
			q.Set(ReturnURLKey, u.String())
			dest.RawQuery = q.Encode()
		}
		u = dest
		out.Redirected = true
	}

	n.moveTo(u)
	out.Location = u.String()
	n.logger.Debug("navigate",
		zap.String("requested", out.Requested),
		zap.String("location", out.Location),
		zap.Stringer("class", route.Class),
		zap.Bool("redirected", out.Redirected),
	)
	return out, nil
}

func (n *Navigator) moveTo(u *url.URL) {
	n.mu.Lock()
	n.location = u
	n.history = append(n.history, u.String())
	n.mu.Unlock()
}
