// ABOUTME: HTTP handlers for session CRUD and the per-session message log
// ABOUTME: Every store call carries the caller's principal ID as the owner

package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/chat-gateway/internal/auth"
	"github.com/2389/chat-gateway/internal/store"
)

// requirePrincipal resolves the caller to a principal ID. Static config keys
// authenticate but own nothing, so session routes reject them.
func (g *Gateway) requirePrincipal(w http.ResponseWriter, r *http.Request) (string, bool) {
	ac := auth.MustFromContext(r.Context())
	if ac.PrincipalID == "" {
		writeError(w, http.StatusForbidden, "forbidden", "this credential has no associated account")
		return "", false
	}
	return ac.PrincipalID, true
}

// handleSessions handles /api/sessions: GET lists the caller's sessions,
// POST creates one.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.requirePrincipal(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.listSessions(w, r, ownerID)
	case http.MethodPost:
		g.createSession(w, r, ownerID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
	}
}

func (g *Gateway) listSessions(w http.ResponseWriter, r *http.Request, ownerID string) {
	sessions, err := g.store.ListSessions(r.Context(), ownerID)
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) createSession(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid", "title is required")
		return
	}

	s := &store.Session{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		IsActive:    true,
	}
	if err := g.store.CreateSession(r.Context(), s); err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	g.logger.Info("created session", "session_id", s.ID, "owner_id", ownerID)
	writeJSON(w, http.StatusCreated, sessionResponse(s))
}

// handleSessionRoutes dispatches /api/sessions/{id} and
// /api/sessions/{id}/messages.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := g.requirePrincipal(w, r)
	if !ok {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		g.handleSession(w, r, parts[0], ownerID)
	case len(parts) == 2 && parts[1] == "messages":
		g.handleMessages(w, r, parts[0], ownerID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	}
}

func (g *Gateway) handleSession(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	switch r.Method {
	case http.MethodGet:
		g.getSession(w, r, sessionID, ownerID)
	case http.MethodPut:
		g.updateSession(w, r, sessionID, ownerID)
	case http.MethodDelete:
		g.deleteSession(w, r, sessionID, ownerID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
	}
}

// getSession returns the session together with its full ordered message log.
func (g *Gateway) getSession(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	s, err := g.store.GetSession(r.Context(), sessionID, ownerID)
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}
	msgs, err := g.store.ListMessages(r.Context(), sessionID, ownerID)
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	resp := sessionResponse(s)
	resp.Messages = messageResponses(msgs)
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) updateSession(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		IsActive    *bool   `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid", "title cannot be empty")
		return
	}

	s, err := g.store.UpdateSession(r.Context(), sessionID, ownerID, store.SessionUpdate{
		Title:       req.Title,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(s))
}

func (g *Gateway) deleteSession(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	if err := g.store.DeleteSession(r.Context(), sessionID, ownerID); err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	g.logger.Info("deleted session", "session_id", sessionID, "owner_id", ownerID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	switch r.Method {
	case http.MethodGet:
		g.listMessages(w, r, sessionID, ownerID)
	case http.MethodPost:
		g.appendMessage(w, r, sessionID, ownerID)
	case http.MethodDelete:
		g.clearMessages(w, r, sessionID, ownerID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
	}
}

func (g *Gateway) listMessages(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	msgs, err := g.store.ListMessages(r.Context(), sessionID, ownerID)
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  messageResponses(msgs),
	})
}

func validMessageRole(role string) bool {
	switch role {
	case store.MessageRoleUser, store.MessageRoleAssistant, store.MessageRoleSystem:
		return true
	}
	return false
}

func (g *Gateway) appendMessage(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	var req struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		TokenCount int    `json:"tokenCount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}
	if !validMessageRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid", "role must be user, assistant, or system")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid", "content is required")
		return
	}

	msg := &store.Message{
		ID:         uuid.New().String(),
		Role:       req.Role,
		Content:    req.Content,
		TokenCount: req.TokenCount,
	}
	if err := g.store.AppendMessage(r.Context(), sessionID, ownerID, msg); err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": messageResponse(msg),
	})
}

func (g *Gateway) clearMessages(w http.ResponseWriter, r *http.Request, sessionID, ownerID string) {
	if err := g.store.ClearMessages(r.Context(), sessionID, ownerID); err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	g.logger.Info("cleared messages", "session_id", sessionID, "owner_id", ownerID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
