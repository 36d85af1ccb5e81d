// ABOUTME: Package documentation for the auth package
// ABOUTME: Explains tokens, API keys, verification modes, and their limits

// Package auth provides authentication and authorization for chat-gateway.
//
// # Credentials
//
// Two credential kinds are accepted:
//
//   - Bearer tokens: HS256-signed JWTs carrying a self-contained claim set
//     (principal ID, username, email, role). Access tokens live 7 days by
//     default, refresh tokens 30 days. Verification is stateless; the
//     middleware re-checks is_active against the store because claims can be
//     stale relative to deactivation.
//
//   - API keys: long-lived credentials sent in the X-API-Key header. Keys
//     issued to a principal are persisted on its record and verified by
//     store lookup; static machine keys come from configuration and are not
//     tied to any principal. Key-authenticated requests pass through the
//     fixed-window rate limiter and increment the key's usage counter
//     exactly once.
//
// There is no revocation list. A leaked token stays valid until expiry;
// rotating the signing secret is the only global invalidation. This is a
// documented property of the design, not an oversight.
//
// # Verification modes
//
// Routes pick one of three middleware constructors at registration time:
//
//	mw.RequireToken  // bearer token only
//	mw.RequireKey    // API key only, rate limited
//	mw.RequireDual   // token first, key fallback when absent/invalid/expired
//
// Dual mode serves human and machine callers on the same route without
// duplicating definitions. A valid token short-circuits the key check, so a
// bad key alongside a good token does not reject and does not count usage.
//
// On success the resolved identity and verification method are attached to
// the request context via WithAuth and read back with FromContext.
package auth
