// Package ctxutil provides shared context key accessors.
//
// server's auth middleware stores the caller's claims here and mcp reads
// them back when it logs writes. Both import ctxutil instead of each other.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/tsuzuri/internal/auth"
)

type contextKey string

const keyClaims contextKey = "claims"

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context.
// It returns nil when auth is disabled or the path is public.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// Client returns the client label of the authenticated caller, or "" when
// the context carries no claims.
func Client(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Client
	}
	return ""
}
