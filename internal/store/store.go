// ABOUTME: Store interfaces and data types for chat-gateway persistence
// ABOUTME: Defines Principal, Session, Message structs and the store contracts

package store

import (
	"context"
	"errors"
	"time"
)

// ErrPrincipalNotFound is returned when a principal does not exist.
// Lookups by API key also return it for inactive principals, so callers
// cannot tell an unknown key from a disabled one.
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrDuplicateIdentifier is returned when a username or email is already taken.
var ErrDuplicateIdentifier = errors.New("username or email already exists")

// ErrDuplicateAPIKey is returned when assigning an API key that already
// belongs to another principal.
var ErrDuplicateAPIKey = errors.New("api key already exists")

// ErrSessionNotFound is returned when a session does not exist or is owned
// by a different principal. The two cases are deliberately indistinguishable.
var ErrSessionNotFound = errors.New("session not found")

// Role constants for principals
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Message role constants; the conversation order user/assistant/system
// mirrors the chat completion contract of the downstream LLM service.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"
)

// Principal represents an authenticated identity: a human user or an
// admin/machine account. Principals are never hard-deleted; deactivation
// flips IsActive instead.
type Principal struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string // bcrypt hash, never plaintext
	Role             string
	APIKey           string // empty if no key has been issued
	APIKeyUsageCount int64
	APIKeyLimit      int64
	IsActive         bool
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PrincipalUpdate describes a partial update to a principal record.
// Nil fields are left unchanged.
type PrincipalUpdate struct {
	Email        *string
	PasswordHash *string
	Role         *string
	IsActive     *bool
	APIKeyLimit  *int64
}

// Session represents a conversation owned by exactly one principal.
type Session struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionUpdate describes a partial update to a session record.
type SessionUpdate struct {
	Title       *string
	Description *string
	IsActive    *bool
}

// Message is a single entry in a session's conversation. Seq is assigned by
// the store and is the canonical conversation order within a session.
type Message struct {
	ID         string
	SessionID  string
	Seq        int64
	Role       string
	Content    string
	TokenCount int
	CreatedAt  time.Time
}

// PrincipalStore defines the interface for principal persistence
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	// GetPrincipalByLogin matches username exactly or email case-insensitively.
	GetPrincipalByLogin(ctx context.Context, usernameOrEmail string) (*Principal, error)
	// GetPrincipalByAPIKey returns only active principals; unknown and
	// inactive keys both yield ErrPrincipalNotFound.
	GetPrincipalByAPIKey(ctx context.Context, key string) (*Principal, error)
	UpdatePrincipal(ctx context.Context, id string, upd PrincipalUpdate) (*Principal, error)
	SetAPIKey(ctx context.Context, id, key string, limit int64) error
	IncrementAPIKeyUsage(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	ListPrincipals(ctx context.Context) ([]*Principal, error)
	CountPrincipals(ctx context.Context) (int, error)
}

// SessionStore defines the interface for session and message persistence.
// Every operation that targets an existing session takes the owner's
// principal ID and applies it inside the same statement as the session ID,
// so ownership is checked atomically with the lookup.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	// ListSessions returns the owner's sessions, most recently updated first.
	ListSessions(ctx context.Context, ownerID string) ([]*Session, error)
	GetSession(ctx context.Context, id, ownerID string) (*Session, error)
	UpdateSession(ctx context.Context, id, ownerID string, upd SessionUpdate) (*Session, error)
	// DeleteSession removes the session and cascades to its messages.
	DeleteSession(ctx context.Context, id, ownerID string) error
	// AppendMessage assigns msg.Seq, inserts the message, and bumps the
	// parent session's updated_at in one transaction.
	AppendMessage(ctx context.Context, sessionID, ownerID string, msg *Message) error
	// ListMessages returns messages in canonical conversation order.
	ListMessages(ctx context.Context, sessionID, ownerID string) ([]*Message, error)
	ClearMessages(ctx context.Context, sessionID, ownerID string) error
}

// Store combines all persistence interfaces backed by a single database.
type Store interface {
	PrincipalStore
	SessionStore

	// Close releases any resources held by the store
	Close() error
}
