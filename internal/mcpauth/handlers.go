package mcpauth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Handlers exposes the orchestrator over HTTP. Response shapes are stable
// contracts with the frontend; in particular the status payload never
// includes token material, only its presence.
type Handlers struct {
	manager *Manager
	logger  *slog.Logger
}

func NewHandlers(manager *Manager) *Handlers {
	return &Handlers{
		manager: manager,
		logger:  slog.Default(),
	}
}

// HandleAuth handles GET /auth/upstream?action=login. An already-authenticated
// session gets a JSON acknowledgement; otherwise the client is redirected to
// the upstream authorization page.
func (h *Handlers) HandleAuth(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action != "login" {
		h.writeError(w, http.StatusBadRequest, &AuthError{
			Code:    CodeInvalidAction,
			Message: "Invalid action parameter, expected 'login'",
		})
		return
	}

	result := h.manager.InitAuth(r.Context(), w, r)
	switch {
	case result.Success:
		h.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Already authenticated",
		})
	case result.AuthURL != "":
		http.Redirect(w, r, result.AuthURL, http.StatusFound)
	default:
		authErr := result.Err
		if authErr == nil {
			authErr = &AuthError{Code: CodeAuthFailed, Message: "Authentication failed"}
		}
		h.writeError(w, http.StatusBadRequest, authErr)
	}
}

// HandleCallback handles GET /auth/upstream/callback. All outcomes are
// redirects back to the app shell; the orchestrator owns the outcome mapping.
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	h.manager.HandleCallback(w, r)
}

// HandleLogout handles POST /auth/upstream/logout.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic during logout", "panic", rec)
			h.writeError(w, http.StatusInternalServerError, &AuthError{
				Code:    CodeLogoutError,
				Message: "Failed to log out",
			})
		}
	}()

	h.manager.Logout(w, r)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// HandleRefresh handles POST /auth/upstream/refresh. A refresh that cannot
// produce a token means the session must re-authenticate, so it answers 401.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := h.manager.RefreshTokenIfNeeded(r.Context(), w, r)
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, &AuthError{
			Code:    CodeRefreshFailed,
			Message: "Failed to refresh token, re-authentication required",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Token refreshed successfully",
	})
}

// HandleStatus handles GET /auth/upstream/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic during status check", "panic", rec)
			h.writeError(w, http.StatusInternalServerError, &AuthError{
				Code:    CodeStatusCheckError,
				Message: "Failed to check authentication status",
			})
		}
	}()

	authenticated := h.manager.IsAuthenticated(w, r)

	var tokenInfo any
	if authenticated {
		tokenInfo = map[string]any{"hasToken": true}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": authenticated,
		"tokenInfo":     tokenInfo,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, authErr *AuthError) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   authErr,
	})
}
