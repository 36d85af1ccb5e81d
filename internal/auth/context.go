// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Verification methods recorded on the AuthContext.
const (
	MethodToken  = "token"
	MethodAPIKey = "api_key"
)

// AuthContext holds the authenticated identity information extracted from a
// request. Populated by the gateway middleware and retrieved from context in
// handlers. PrincipalID is empty when a static machine key authenticated the
// request; such callers have no owned resources.
type AuthContext struct {
	PrincipalID string // UUID of the authenticated principal, empty for static keys
	Username    string
	Role        string
	Method      string // "token" or "api_key"
	KeyName     string // set when a static config key authenticated the request
}

// IsAdmin returns true if the principal has the admin role.
func (a *AuthContext) IsAdmin() bool {
	return a.Role == "admin"
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
