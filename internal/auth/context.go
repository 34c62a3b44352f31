package auth

import (
	"context"
	"fmt"
)

// Principal is the user behind a validated session cookie, for the
// lifetime of one request.
type Principal struct {
	UserID int64
	Role   string
	// Claims are kept so logout can revoke this exact session.
	Claims *Claims
}

// PrincipalFromClaims builds the request principal from validated claims.
func PrincipalFromClaims(claims *Claims) (Principal, error) {
	if claims == nil {
		return Principal{}, ErrUnauthorized
	}
	uid, err := claims.UserID()
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return Principal{UserID: uid, Role: claims.Role, Claims: claims}, nil
}

type principalKey struct{}

// WithPrincipal marks the request as belonging to p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom reports the session owner of the request, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != 0
}
