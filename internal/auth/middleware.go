// ABOUTME: HTTP middleware implementing the token / key / dual verification modes
// ABOUTME: Resolves a principal, applies the rate limiter, and annotates the request context

package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/chat-gateway/internal/ratelimit"
	"github.com/2389/chat-gateway/internal/store"
)

// APIKeyHeader carries static or principal API keys.
const APIKeyHeader = "X-API-Key"

// StaticKey is a machine key from configuration, not tied to a principal.
type StaticKey struct {
	Name     string
	Disabled bool
}

// Middleware authenticates requests against the token codec, the credential
// store, the static key table, and the rate limiter. The verification mode
// is chosen per route by picking one of RequireToken, RequireKey, or
// RequireDual at registration time.
type Middleware struct {
	principals store.PrincipalStore
	codec      *Codec
	limiter    *ratelimit.Limiter
	staticKeys map[string]StaticKey
	logger     *slog.Logger
}

// NewMiddleware creates the auth middleware. staticKeys maps key values to
// their config entries; pass nil when no machine keys are configured.
func NewMiddleware(principals store.PrincipalStore, codec *Codec, limiter *ratelimit.Limiter, staticKeys map[string]StaticKey, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		principals: principals,
		codec:      codec,
		limiter:    limiter,
		staticKeys: staticKeys,
		logger:     logger.With("component", "auth"),
	}
}

// authError is a rejection with a stable kind for the response envelope.
type authError struct {
	status  int
	kind    string
	message string
}

func unauthenticated(msg string) *authError {
	return &authError{status: http.StatusUnauthorized, kind: "unauthenticated", message: msg}
}

func forbidden(msg string) *authError {
	return &authError{status: http.StatusForbidden, kind: "forbidden", message: msg}
}

func unavailable() *authError {
	return &authError{status: http.StatusServiceUnavailable, kind: "unavailable", message: "service temporarily unavailable"}
}

// write sends the rejection as the standard error envelope.
func (e *authError) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": e.kind, "message": e.message},
	})
}

// RequireToken authenticates with a bearer token only.
func (m *Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, aerr := m.authenticateToken(r)
		if aerr != nil {
			aerr.write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
	})
}

// RequireKey authenticates with an API key only.
func (m *Middleware) RequireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, result, aerr := m.authenticateKey(r)
		if result != nil {
			setRateLimitHeaders(w, result)
		}
		if aerr != nil {
			aerr.write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
	})
}

// RequireDual tries token verification first and falls back to key
// verification when the token is absent, invalid, or expired. A valid token
// on an inactive principal rejects outright: that credential identified a
// real account, so the key path must not resurrect it.
func (m *Middleware) RequireDual(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			authCtx, aerr := m.authenticateToken(r)
			if aerr == nil {
				next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
				return
			}
			if aerr.status == http.StatusForbidden || aerr.status == http.StatusServiceUnavailable {
				aerr.write(w)
				return
			}
		}

		authCtx, result, aerr := m.authenticateKey(r)
		if result != nil {
			setRateLimitHeaders(w, result)
		}
		if aerr != nil {
			if aerr.status == http.StatusUnauthorized {
				// Both paths failed
				unauthenticated("missing or invalid credentials").write(w)
				return
			}
			aerr.write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
	})
}

// RequireAdmin gates a route to principals with the admin role.
// Must be used after one of the authentication middlewares.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				unauthenticated("not authenticated").write(w)
				return
			}
			if !authCtx.IsAdmin() {
				forbidden("admin role required").write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticateToken resolves a bearer token to an active principal.
func (m *Middleware) authenticateToken(r *http.Request) (*AuthContext, *authError) {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		return nil, unauthenticated(errMsg)
	}

	claims, err := m.codec.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, unauthenticated("token expired")
		}
		return nil, unauthenticated("invalid token")
	}

	// Claims may be stale: the principal could have been deactivated after
	// the token was issued, so is_active is re-checked against the store.
	principal, err := m.principals.GetPrincipal(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, unauthenticated("invalid token")
		}
		m.logger.Error("principal lookup failed", "error", err)
		return nil, unavailable()
	}

	if !principal.IsActive {
		return nil, forbidden("account is deactivated")
	}

	return &AuthContext{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		Role:        principal.Role,
		Method:      MethodToken,
	}, nil
}

// authenticateKey resolves an API key, applies the rate limiter, and
// increments usage exactly once. The rate limit result is returned even on
// rejection so the caller can advertise retry timing.
func (m *Middleware) authenticateKey(r *http.Request) (*AuthContext, *ratelimit.Result, *authError) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		return nil, nil, unauthenticated("missing api key")
	}

	// Static machine keys take precedence; they are not principal-backed.
	if sk, ok := m.staticKeys[key]; ok {
		if sk.Disabled {
			return nil, nil, forbidden("api key is disabled")
		}
		result := m.limiter.Consume(key)
		if !result.Allowed {
			return nil, &result, rateLimited(result)
		}
		return &AuthContext{
			Method:  MethodAPIKey,
			KeyName: sk.Name,
		}, &result, nil
	}

	// Unknown and inactive keys are indistinguishable here by design.
	principal, err := m.principals.GetPrincipalByAPIKey(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return nil, nil, unauthenticated("invalid api key")
		}
		m.logger.Error("api key lookup failed", "error", err)
		return nil, nil, unavailable()
	}

	result := m.limiter.Consume(key)
	if !result.Allowed {
		return nil, &result, rateLimited(result)
	}

	if err := m.principals.IncrementAPIKeyUsage(r.Context(), principal.ID); err != nil {
		m.logger.Error("incrementing api key usage failed", "error", err)
		return nil, &result, unavailable()
	}

	return &AuthContext{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		Role:        principal.Role,
		Method:      MethodAPIKey,
	}, &result, nil
}

// rateLimited builds the 429 rejection for an exhausted window.
func rateLimited(result ratelimit.Result) *authError {
	return &authError{
		status:  http.StatusTooManyRequests,
		kind:    "rate_limited",
		message: "rate limit exceeded, retry after " + result.ResetAt.UTC().Format("15:04:05") + " UTC",
	}
}

// setRateLimitHeaders advertises quota state on every key-authenticated
// response, plus Retry-After when the request was rejected.
func setRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if !result.Allowed {
		retryAfter := int(time.Until(result.ResetAt).Seconds()) + 1
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}
