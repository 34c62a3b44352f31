// Package access decides whether a navigation attempt may proceed.
package access

import (
	"context"

	"go.uber.org/zap"

	"sharedledger.org/internal/identity"
	"sharedledger.org/internal/obs"
)

// DefaultLoginPath is where unauthenticated navigation is sent.
const DefaultLoginPath = "/login"

// Class is the authorization class of a route, chosen by the router.
type Class int

const (
	ClassPublic Class = iota
	ClassAuthenticated
	ClassResource
)

func (c Class) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassAuthenticated:
		return "authenticated"
	case ClassResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Route is a navigation target's class plus, for resource routes, the id.
type Route struct {
	Class      Class
	ResourceID int64
}

func Public() Route                 { return Route{Class: ClassPublic} }
func AuthenticatedOnly() Route      { return Route{Class: ClassAuthenticated} }
func ResourceScoped(id int64) Route { return Route{Class: ClassResource, ResourceID: id} }

// Verdict is Allow or RedirectTo(path).
type Verdict struct {
	redirect string
}

func Allow() Verdict                 { return Verdict{} }
func RedirectTo(path string) Verdict { return Verdict{redirect: path} }

// Allowed reports whether navigation may proceed.
func (v Verdict) Allowed() bool { return v.redirect == "" }

// Redirect returns the redirect target, if any.
func (v Verdict) Redirect() (string, bool) { return v.redirect, v.redirect != "" }

func (v Verdict) String() string {
	if v.Allowed() {
		return "allow"
	}
	return "redirect:" + v.redirect
}

// Visibility is the externally owned publicity flag of a resource. Shared
// is set when the lookup succeeded through a share token carried in ctx.
type Visibility struct {
	IsPublic bool `json:"isPublic"`
	Shared   bool `json:"-"`
}

type shareTokenKey struct{}

// WithShareToken attaches the share token of a navigation target to ctx.
func WithShareToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, shareTokenKey{}, token)
}

// ShareTokenFromContext returns the share token attached by WithShareToken.
func ShareTokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(shareTokenKey{}).(string)
	return tok
}

// VisibilityLookup fetches a resource's visibility. Never cached here.
type VisibilityLookup interface {
	Visibility(ctx context.Context, resourceID int64) (Visibility, error)
}

// IdentitySource yields the current identity; identity.Cache satisfies it.
type IdentitySource interface {
	Current(ctx context.Context) (identity.Identity, error)
}

// Policy evaluates routes against the current identity. It never writes to
// the identity source.
type Policy struct {
	identities IdentitySource
	visibility VisibilityLookup
	loginPath  string
	logger     *zap.Logger
}

// Option customises a Policy.
type Option func(*Policy)

// WithLoginPath overrides DefaultLoginPath.
func WithLoginPath(path string) Option {
	return func(p *Policy) {
		if path != "" {
			p.loginPath = path
		}
	}
}

// WithLogger overrides the shared obs logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPolicy(identities IdentitySource, visibility VisibilityLookup, opts ...Option) *Policy {
	p := &Policy{
		identities: identities,
		visibility: visibility,
		loginPath:  DefaultLoginPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = obs.Logger()
	}
	return p
}

// LoginPath is the redirect target for unauthenticated navigation.
func (p *Policy) LoginPath() string { return p.loginPath }

// Evaluate computes a fresh verdict for route.
//
// Resource routes check visibility before identity so an anonymous visitor
// can still reach a public resource, or a private one through a share token
// in ctx. A failed visibility fetch counts as private.
func (p *Policy) Evaluate(ctx context.Context, route Route) Verdict {
	var v Verdict
	switch route.Class {
	case ClassPublic:
		v = Allow()
	case ClassResource:
		if p.isReadable(ctx, route.ResourceID) {
			v = Allow()
		} else {
			v = p.requireAuthenticated(ctx)
		}
	default:
		v = p.requireAuthenticated(ctx)
	}

	verdict := "allow"
	if !v.Allowed() {
		verdict = "redirect"
	}
	obs.AccessVerdicts.WithLabelValues(route.Class.String(), verdict).Inc()
	p.logger.Debug("access.verdict",
		zap.String("class", route.Class.String()),
		zap.Int64("resource_id", route.ResourceID),
		zap.String("verdict", v.String()),
	)
	return v
}

func (p *Policy) isReadable(ctx context.Context, id int64) bool {
	if p.visibility == nil {
		return false
	}
	vis, err := p.visibility.Visibility(ctx, id)
	if err != nil {
		p.logger.Debug("access.visibility", zap.Int64("resource_id", id), zap.Error(err))
		return false
	}
	return vis.IsPublic || vis.Shared
}

func (p *Policy) requireAuthenticated(ctx context.Context) Verdict {
	if p.identities == nil {
		return RedirectTo(p.loginPath)
	}
	id, err := p.identities.Current(ctx)
	if err != nil || !id.Authenticated {
		return RedirectTo(p.loginPath)
	}
	return Allow()
}
