// Package identity holds the current principal of a client session and
// coordinates lookups of it against the server.
package identity

import (
	"context"
	"errors"
	"maps"
)

// ErrInvalidResult is returned by Result.Validate when a fetcher reports an
// authenticated principal without an id, or an unknown status.
var ErrInvalidResult = errors.New("identity: invalid lookup result")

// Identity is the authenticated principal or its absence. Values are replaced
// whole; nothing in this package mutates one after it is published.
type Identity struct {
	Authenticated bool           `json:"authenticated"`
	ID            int64          `json:"id,omitempty"`
	DisplayName   string         `json:"displayName,omitempty"`
	Email         string         `json:"email,omitempty"`
	Role          string         `json:"role,omitempty"`
	Profile       map[string]any `json:"profile,omitempty"`
}

// Anonymous returns the absent identity.
func Anonymous() Identity { return Identity{} }

func (i Identity) clone() Identity {
	if i.Profile != nil {
		i.Profile = maps.Clone(i.Profile)
	}
	return i
}

// Status discriminates a lookup Result.
type Status int

const (
	StatusAnonymous Status = iota
	StatusAuthenticated
)

// Result is what a Fetcher returns for one lookup.
type Result struct {
	Status    Status
	Principal Identity
}

// Authenticated wraps a principal as a successful lookup result.
func Authenticated(principal Identity) Result {
	principal.Authenticated = true
	return Result{Status: StatusAuthenticated, Principal: principal}
}

// NotAuthenticated is the result for a server that knows no session.
func NotAuthenticated() Result {
	return Result{Status: StatusAnonymous}
}

// Validate checks the result once at the fetcher boundary.
func (r Result) Validate() error {
	switch r.Status {
	case StatusAnonymous:
		return nil
	case StatusAuthenticated:
		if r.Principal.ID == 0 {
			return ErrInvalidResult
		}
		return nil
	default:
		return ErrInvalidResult
	}
}

// Resolve collapses the result into the Identity the cache publishes.
// Invalid results resolve to Anonymous.
func (r Result) Resolve() Identity {
	if r.Validate() != nil || r.Status != StatusAuthenticated {
		return Anonymous()
	}
	id := r.Principal.clone()
	id.Authenticated = true
	return id
}

// Fetcher performs one identity lookup against the server.
type Fetcher interface {
	FetchIdentity(ctx context.Context) (Result, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (Result, error)

func (f FetcherFunc) FetchIdentity(ctx context.Context) (Result, error) { return f(ctx) }

// State is the per-session authentication state.
type State int

const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Cause names the write that produced a Transition.
type Cause string

const (
	CauseLookup     Cause = "lookup"
	CauseSet        Cause = "set"
	CauseInvalidate Cause = "invalidate"
)

// Transition describes one write to the cache. Seq increases with every
// write, so the highest Seq seen matches the cache's current state.
type Transition struct {
	Seq      uint64
	From     State
	To       State
	Cause    Cause
	Identity Identity
}

// Changed reports whether the write moved the session to another state.
func (t Transition) Changed() bool { return t.From != t.To }

func stateOf(id Identity) State {
	if id.Authenticated {
		return StateAuthenticated
	}
	return StateAnonymous
}
