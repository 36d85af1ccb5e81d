// ABOUTME: Package documentation for the store package
// ABOUTME: Explains the persistence model and ownership-scoped query rule

// Package store provides persistence for chat-gateway.
//
// # Entities
//
// Three tables back the gateway:
//
//   - principals: human users and machine/admin accounts, with bcrypt
//     password hashes, optional long-lived API keys, and usage counters
//   - sessions: conversations, each owned by exactly one principal
//   - messages: ordered entries within a session
//
// # Ownership-scoped queries
//
// Every read or write that targets an existing session includes the owner's
// principal ID in the statement's WHERE clause, alongside the session ID.
// There is no fetch-then-compare step anywhere: a session that exists under
// another owner and a session that does not exist produce the same
// ErrSessionNotFound, atomically with the lookup itself.
//
// # Ordering
//
// Messages carry a per-session seq assigned inside the append transaction;
// seq is the canonical conversation order. Sessions list most recently
// updated first, and appending a message bumps the parent session's
// updated_at in the same transaction.
//
// # Implementation
//
// SQLiteStore implements the Store interface using modernc.org/sqlite with
// WAL mode and foreign keys enabled. Timestamps are stored as fixed-width
// RFC3339 UTC strings so they sort correctly as text. Principals are never
// hard-deleted; deactivation clears is_active and every credential check
// fails from then on.
package store
