// Package guard wraps outgoing API traffic: it attaches the session
// credential and reacts to 401/403 responses without redirect loops.
package guard

import (
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"sharedledger.org/internal/obs"
)

// Invalidator clears the cached identity; identity.Cache satisfies it.
type Invalidator interface {
	Invalidate()
}

// Navigator exposes the current location and performs redirects.
type Navigator interface {
	Location() *url.URL
	Redirect(path string)
}

// Credentials holds the session credential the guard attaches and refreshes.
type Credentials interface {
	SessionToken() string
	Capture(cookies []*http.Cookie)
}

// SessionCookie is the name of the session credential cookie.
const SessionCookie = "SESSION"

// Transport is an http.RoundTripper applying the guard to every call.
// The response is always returned to the caller unchanged; the guard only
// adds side effects.
type Transport struct {
	base        http.RoundTripper
	identity    Invalidator
	navigator   Navigator
	credentials Credentials
	rules       Rules
	logger      *zap.Logger
}

// Option customises a Transport.
type Option func(*Transport)

// WithRules overrides DefaultRules.
func WithRules(r Rules) Option {
	return func(t *Transport) { t.rules = r }
}

// WithCredentials sets the session credential source.
func WithCredentials(c Credentials) Option {
	return func(t *Transport) { t.credentials = c }
}

// WithNavigator sets the navigator used for location checks and redirects.
func WithNavigator(n Navigator) Option {
	return func(t *Transport) { t.navigator = n }
}

// WithLogger overrides the shared obs logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// New wraps base (http.DefaultTransport when nil).
func New(base http.RoundTripper, identity Invalidator, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{
		base:     base,
		identity: identity,
		rules:    DefaultRules(""),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = obs.Logger()
	}
	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.credentials != nil {
		if token := t.credentials.SessionToken(); token != "" {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.credentials != nil {
		t.credentials.Capture(resp.Cookies())
	}

	var location *url.URL
	if t.navigator != nil {
		location = t.navigator.Location()
	}
	d := t.rules.Decide(req, resp.StatusCode, location)
	t.apply(d)

	obs.GuardDecisions.WithLabelValues(string(d)).Inc()
	if d != DecisionPass && d != DecisionPreAuth {
		t.logger.Info("guard.decision",
			zap.String("decision", string(d)),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("status", strconv.Itoa(resp.StatusCode)),
		)
	}
	return resp, nil
}

func (t *Transport) apply(d Decision) {
	if d.Invalidates() && t.identity != nil {
		t.identity.Invalidate()
	}
	if d == DecisionRedirect && t.navigator != nil {
		t.navigator.Redirect(t.rules.LoginPath)
	}
}
