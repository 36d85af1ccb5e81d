// ABOUTME: Admin-only HTTP handlers for principal management
// ABOUTME: List, inspect, create, update, and deactivate principal accounts

package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/chat-gateway/internal/auth"
	"github.com/2389/chat-gateway/internal/store"
)

// handleListPrincipals handles /api/admin/principals: GET lists every
// principal, POST creates one with an explicit role.
func (g *Gateway) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principals, err := g.store.ListPrincipals(r.Context())
		if err != nil {
			writeStoreError(w, g.logger, err)
			return
		}
		out := make([]PrincipalResponse, 0, len(principals))
		for _, p := range principals {
			out = append(out, principalResponse(p))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		g.createPrincipal(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
	}
}

func (g *Gateway) createPrincipal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid", "username, email, and password are required")
		return
	}
	if req.Role == "" {
		req.Role = store.RoleUser
	}
	if req.Role != store.RoleUser && req.Role != store.RoleAdmin {
		writeError(w, http.StatusBadRequest, "invalid", "role must be user or admin")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		g.logger.Error("hashing password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	p := &store.Principal{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := g.store.CreatePrincipal(r.Context(), p); err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	admin := auth.MustFromContext(r.Context())
	g.logger.Info("created principal", "principal_id", p.ID, "role", p.Role, "created_by", admin.PrincipalID)
	writeJSON(w, http.StatusCreated, principalResponse(p))
}

// handlePrincipalRoutes dispatches /api/admin/principals/{id} and
// /api/admin/principals/{id}/deactivate.
func (g *Gateway) handlePrincipalRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/principals/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		g.handlePrincipal(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "deactivate":
		g.deactivatePrincipal(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not_found", "not found")
	}
}

func (g *Gateway) handlePrincipal(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		p, err := g.store.GetPrincipal(r.Context(), id)
		if err != nil {
			writeStoreError(w, g.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, principalResponse(p))
	case http.MethodPut:
		g.updatePrincipal(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
	}
}

func (g *Gateway) updatePrincipal(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Email       *string `json:"email"`
		Password    *string `json:"password"`
		Role        *string `json:"role"`
		IsActive    *bool   `json:"isActive"`
		APIKeyLimit *int64  `json:"apiKeyLimit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}
	if req.Role != nil && *req.Role != store.RoleUser && *req.Role != store.RoleAdmin {
		writeError(w, http.StatusBadRequest, "invalid", "role must be user or admin")
		return
	}

	upd := store.PrincipalUpdate{
		Email:       req.Email,
		Role:        req.Role,
		IsActive:    req.IsActive,
		APIKeyLimit: req.APIKeyLimit,
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			g.logger.Error("hashing password", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal server error")
			return
		}
		upd.PasswordHash = &hash
	}

	p, err := g.store.UpdatePrincipal(r.Context(), id, upd)
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, principalResponse(p))
}

// deactivatePrincipal handles POST /api/admin/principals/{id}/deactivate.
// Outstanding tokens for the principal keep verifying but fail the active
// check on every authenticated request, so access ends immediately.
func (g *Gateway) deactivatePrincipal(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
		return
	}

	inactive := false
	p, err := g.store.UpdatePrincipal(r.Context(), id, store.PrincipalUpdate{IsActive: &inactive})
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	admin := auth.MustFromContext(r.Context())
	g.logger.Info("deactivated principal", "principal_id", id, "deactivated_by", admin.PrincipalID)
	writeJSON(w, http.StatusOK, principalResponse(p))
}
