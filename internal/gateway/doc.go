// ABOUTME: Package documentation for the HTTP gateway
// ABOUTME: Describes route groups and their verification modes

// Package gateway exposes the HTTP API: authentication endpoints, the
// session and message resources, and the admin surface for principal
// management.
//
// Each route group is bound to a verification mode at registration time.
// Login and refresh are open; the session resources accept either a bearer
// token or an API key; the admin surface requires a bearer token carrying
// the admin role. Handlers read the authenticated identity from the request
// context and never inspect credentials themselves.
package gateway
