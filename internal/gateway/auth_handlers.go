// ABOUTME: HTTP handlers for login, refresh, validate, me, and API key issuance
// ABOUTME: Login optionally auto-registers unknown email identifiers

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chat-gateway/internal/auth"
	"github.com/2389/chat-gateway/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Login    string `json:"login"` // accepted as an alias for username
	Password string `json:"password"`
}

func (r *loginRequest) identifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Login
}

type loginResponse struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	ExpiresAt    string            `json:"expiresAt"`
	IsNewUser    bool              `json:"isNewUser"`
	User         PrincipalResponse `json:"user"`
}

// handleLogin handles POST /api/auth/login. Unknown identifiers and wrong
// passwords produce the same response after roughly the same amount of work,
// so timing does not reveal which usernames exist.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body")
		return
	}

	identifier := strings.TrimSpace(req.identifier())
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid", "username and password are required")
		return
	}

	isNewUser := false
	p, err := g.store.GetPrincipalByLogin(r.Context(), identifier)
	switch {
	case err == nil:
		if !auth.CheckPassword(p.PasswordHash, req.Password) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
			return
		}
	case errors.Is(err, store.ErrPrincipalNotFound):
		if g.autoRegister && strings.Contains(identifier, "@") {
			p, err = g.registerPrincipal(r, identifier, req.Password)
			if err != nil {
				writeStoreError(w, g.logger, err)
				return
			}
			isNewUser = true
		} else {
			auth.BurnPassword(req.Password)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
			return
		}
	default:
		writeStoreError(w, g.logger, err)
		return
	}

	if !p.IsActive {
		writeError(w, http.StatusForbidden, "forbidden", "account is deactivated")
		return
	}

	accessToken, expiresAt, err := g.codec.IssueSessionToken(p)
	if err != nil {
		g.logger.Error("issuing access token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	refreshToken, _, err := g.codec.IssueRefreshToken(p)
	if err != nil {
		g.logger.Error("issuing refresh token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	now := time.Now().UTC()
	if err := g.store.RecordLogin(r.Context(), p.ID, now); err != nil {
		g.logger.Warn("recording login time", "principal_id", p.ID, "error", err)
	} else {
		p.LastLoginAt = &now
	}

	g.logger.Info("login succeeded", "principal_id", p.ID, "username", p.Username, "new_user", isNewUser)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UTC().Format(time.RFC3339),
		IsNewUser:    isNewUser,
		User:         principalResponse(p),
	})
}

// registerPrincipal creates a new principal for an email identifier that
// passed the auto-register gate. The email doubles as the username so the
// uniqueness constraints line up.
func (g *Gateway) registerPrincipal(r *http.Request, email, password string) (*store.Principal, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	p := &store.Principal{
		ID:           uuid.New().String(),
		Username:     email,
		Email:        email,
		PasswordHash: hash,
		Role:         store.RoleUser,
		IsActive:     true,
	}
	if err := g.store.CreatePrincipal(r.Context(), p); err != nil {
		return nil, err
	}
	g.logger.Info("auto-registered principal", "principal_id", p.ID, "email", email)
	return p, nil
}

// handleRefresh handles POST /api/auth/refresh. A valid refresh token yields
// a fresh access token; the refresh token itself is not rotated.
func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid", "refreshToken is required")
		return
	}

	claims, err := g.codec.VerifyRefresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid refresh token")
		return
	}

	// Claims may be stale; the record is authoritative for is_active.
	p, err := g.store.GetPrincipal(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid refresh token")
			return
		}
		writeStoreError(w, g.logger, err)
		return
	}
	if !p.IsActive {
		writeError(w, http.StatusForbidden, "forbidden", "account is deactivated")
		return
	}

	accessToken, expiresAt, err := g.codec.IssueSessionToken(p)
	if err != nil {
		g.logger.Error("issuing access token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken": accessToken,
		"expiresAt":   expiresAt.UTC().Format(time.RFC3339),
	})
}

// handleLogout handles POST /api/auth/logout. Tokens are stateless, so
// logout cannot invalidate them server-side; the client discards its copy.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
		return
	}

	ac := auth.MustFromContext(r.Context())
	g.logger.Info("logout", "principal_id", ac.PrincipalID, "username", ac.Username)

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleValidate handles GET /api/auth/validate under dual-mode auth.
// Reaching the handler at all means the credential was accepted.
func (g *Gateway) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
		return
	}

	ac := auth.MustFromContext(r.Context())

	// Static config keys carry no principal record.
	if ac.PrincipalID == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":   true,
			"user":    nil,
			"keyName": ac.KeyName,
		})
		return
	}

	p, err := g.store.GetPrincipal(r.Context(), ac.PrincipalID)
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  principalResponse(p),
	})
}

// handleMe handles GET /api/auth/me.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
		return
	}

	ac := auth.MustFromContext(r.Context())
	p, err := g.store.GetPrincipal(r.Context(), ac.PrincipalID)
	if err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, principalResponse(p))
}

// handleIssueAPIKey handles POST /api/auth/apikey. Issuing a new key
// replaces any previous one and resets the usage counter.
func (g *Gateway) handleIssueAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid", "method not allowed")
		return
	}

	ac := auth.MustFromContext(r.Context())

	key, err := g.codec.IssueAPIKey(ac.PrincipalID)
	if err != nil {
		g.logger.Error("issuing api key", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	if err := g.store.SetAPIKey(r.Context(), ac.PrincipalID, key, DefaultAPIKeyLimit); err != nil {
		writeStoreError(w, g.logger, err)
		return
	}

	g.logger.Info("issued api key", "principal_id", ac.PrincipalID)

	writeJSON(w, http.StatusOK, map[string]any{
		"apiKey":     key,
		"usageLimit": DefaultAPIKeyLimit,
	})
}
