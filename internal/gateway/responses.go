// ABOUTME: JSON response helpers and the error envelope shared by all handlers
// ABOUTME: Maps store errors onto the stable error taxonomy

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/chat-gateway/internal/store"
)

// PrincipalResponse is the JSON shape of a principal. Field names are the
// durable contract with API consumers and round-trip the schema of §3.
type PrincipalResponse struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	APIKeyUsageCount int64  `json:"apiKeyUsageCount"`
	APIKeyLimit      int64  `json:"apiKeyLimit"`
	IsActive         bool   `json:"isActive"`
	LastLoginAt      string `json:"lastLoginAt,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

// SessionResponse is the JSON shape of a session.
type SessionResponse struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"ownerId"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	IsActive    bool              `json:"isActive"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
	Messages    []MessageResponse `json:"messages,omitempty"`
}

// MessageResponse is the JSON shape of a message.
type MessageResponse struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	Seq        int64  `json:"seq"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	TokenCount int    `json:"tokenCount"`
	CreatedAt  string `json:"createdAt"`
}

// principalResponse converts a store principal. The password hash and the
// API key value itself never appear in responses.
func principalResponse(p *store.Principal) PrincipalResponse {
	resp := PrincipalResponse{
		ID:               p.ID,
		Username:         p.Username,
		Email:            p.Email,
		Role:             p.Role,
		APIKeyUsageCount: p.APIKeyUsageCount,
		APIKeyLimit:      p.APIKeyLimit,
		IsActive:         p.IsActive,
		CreatedAt:        p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.LastLoginAt != nil {
		resp.LastLoginAt = p.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func sessionResponse(s *store.Session) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Title:       s.Title,
		Description: s.Description,
		IsActive:    s.IsActive,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Seq:        m.Seq,
		Role:       m.Role,
		Content:    m.Content,
		TokenCount: m.TokenCount,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func messageResponses(msgs []*store.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse(m))
	}
	return out
}

// writeJSON sends v as a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the standard error envelope. Kinds are stable strings
// the caller can switch on; messages are for humans.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"kind": kind, "message": message},
	})
}

// writeStoreError maps store errors onto the response taxonomy. Persistence
// faults surface as unavailable rather than masquerading as auth failures.
func writeStoreError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, store.ErrPrincipalNotFound):
		writeError(w, http.StatusNotFound, "not_found", "principal not found")
	case errors.Is(err, store.ErrDuplicateIdentifier):
		writeError(w, http.StatusConflict, "duplicate_identifier", "username or email already exists")
	default:
		logger.Error("store operation failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
	}
}
