// Package authz evaluates per-intent ACL permissions and drives the
// access-request approval lifecycle (spec.md §4.6).
package authz

import (
	"context"
	"errors"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal identifies the caller asserted by the API-key + X-Agent-ID
// header pair; the API-key layer is the authentication boundary and
// agent identity is trusted once past it (spec.md §4.6).
type Principal struct {
	ID   string
	Type string
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the Principal set by WithPrincipal.
func FromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return Principal{}, errors.New("authz: no principal in context")
	}
	return p, nil
}

// MustFromContext panics if no principal is set; only safe where
// middleware guarantees one was attached.
func MustFromContext(ctx context.Context) Principal {
	p, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return p
}
