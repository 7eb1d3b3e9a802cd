package api

import (
	"context"

	"github.com/hyperengineering/smartshop/internal/account"
)

// claimsContextKey is the context key for the authenticated user's claims.
type claimsContextKey struct{}

// WithClaims returns a new context with the token claims attached.
func WithClaims(ctx context.Context, c *account.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

// ClaimsFromContext extracts the token claims from the context.
// Returns false if not present or nil.
func ClaimsFromContext(ctx context.Context) (*account.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*account.Claims)
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

// UserIDFromContext returns the authenticated user ID, or "anonymous".
func UserIDFromContext(ctx context.Context) string {
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.Subject == "" {
		return "anonymous"
	}
	return c.Subject
}
