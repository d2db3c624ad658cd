package mcpauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/securecookie"
)

// refreshThreshold is how close to expiry an access token may get before
// RefreshTokenIfNeeded actually hits the network. Tokens with more life left
// are returned as-is to avoid refresh storms.
const refreshThreshold = 5 * time.Minute

// ManagerConfig configures the auth orchestrator.
type ManagerConfig struct {
	// ServerURL is the upstream OAuth-protected MCP server.
	ServerURL string

	// CallbackURL is the absolute URL the upstream redirects back to.
	CallbackURL string

	// BaseURL is the application root users are redirected to after a
	// callback, success or failure.
	BaseURL string

	// ClientName and ClientURI describe this application to the upstream.
	ClientName string
	ClientURI  string

	// StorageKeyPrefix namespaces this integration's cookies.
	StorageKeyPrefix string
}

// Manager is the only auth surface the rest of the application calls. It is
// stateless across calls: every operation re-derives its state from the
// cookie jar of the acting request, so any process instance can serve any
// step of the flow.
type Manager struct {
	cfg           ManagerConfig
	engine        Authorizer
	codec         *securecookie.SecureCookie
	secureCookies bool
	logger        *slog.Logger
}

// NewManager creates the orchestrator. engine is the exchange engine
// (normally *Flow; a fake in tests).
func NewManager(cfg ManagerConfig, engine Authorizer, codec *securecookie.SecureCookie, secureCookies bool) *Manager {
	if cfg.StorageKeyPrefix == "" {
		cfg.StorageKeyPrefix = DefaultStoragePrefix
	}
	return &Manager{
		cfg:           cfg,
		engine:        engine,
		codec:         codec,
		secureCookies: secureCookies,
		logger:        slog.Default(),
	}
}

// Provider builds the cookie-backed client provider for one request.
func (m *Manager) Provider(w http.ResponseWriter, r *http.Request) (*CookieProvider, error) {
	store := NewCookieStore(m.codec, w, r, m.secureCookies)
	return NewCookieProvider(store, ProviderConfig{
		ServerURL:        m.cfg.ServerURL,
		StorageKeyPrefix: m.cfg.StorageKeyPrefix,
		ClientName:       m.cfg.ClientName,
		ClientURI:        m.cfg.ClientURI,
		CallbackURL:      m.cfg.CallbackURL,
	})
}

// providerFromOptions reconstructs a provider from the snapshot embedded in a
// state record, so a callback can be completed by a process instance that
// never saw the login request.
func (m *Manager) providerFromOptions(w http.ResponseWriter, r *http.Request, opts ProviderOptions) (*CookieProvider, error) {
	store := NewCookieStore(m.codec, w, r, m.secureCookies)
	return NewCookieProvider(store, ProviderConfig{
		ServerURL:        opts.ServerURL,
		StorageKeyPrefix: opts.StorageKeyPrefix,
		ClientName:       opts.ClientName,
		ClientURI:        opts.ClientURI,
		CallbackURL:      opts.CallbackURL,
	})
}

// InitAuth starts (or short-circuits) the login flow. Already-valid tokens
// win without a network call; otherwise the exchange engine either reports
// the race-winner "already authorized" case or prepares a redirect. Every
// internal fault is converted into an AuthResult; nothing escapes.
func (m *Manager) InitAuth(ctx context.Context, w http.ResponseWriter, r *http.Request) AuthResult {
	provider, err := m.Provider(w, r)
	if err != nil {
		return initError(err)
	}

	if tokens, ok := provider.Tokens(); ok && tokens.AccessToken != "" {
		return AuthResult{Success: true}
	}

	status, err := m.engine.Authorize(ctx, provider, AuthorizeRequest{ServerURL: m.cfg.ServerURL})
	if err != nil {
		m.logger.Error("auth initialization failed", "error", err)
		return initError(err)
	}

	switch status {
	case StatusAuthorized:
		// Another concurrent request completed the flow first.
		return AuthResult{Success: true}
	case StatusRedirect:
		if authURL := provider.LastAttemptedAuthURL(); authURL != "" {
			return AuthResult{Success: false, AuthURL: authURL}
		}
		return AuthResult{Success: false, Err: &AuthError{
			Code:    CodeAuthURLNotFound,
			Message: "Authorization URL not found in storage",
		}}
	default:
		return AuthResult{Success: false, Err: &AuthError{
			Code:    CodeAuthFailed,
			Message: "Authentication failed with unknown result",
		}}
	}
}

// HandleCallback completes the redirect dance. The outcome is always a
// redirect to the application root carrying either success=true or an
// error/description pair; upstream-reported errors, missing parameters,
// unknown state and exchange failures each map to their own error code.
func (m *Manager) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	if upstreamErr := query.Get("error"); upstreamErr != "" {
		m.logger.Error("upstream reported authorization error",
			"error", upstreamErr, "description", query.Get("error_description"))
		m.redirectWithError(w, r, upstreamErr, query.Get("error_description"))
		return
	}

	if code == "" || state == "" {
		m.redirectWithError(w, r, "missing_params", "Missing authorization code or state")
		return
	}

	provider, err := m.Provider(w, r)
	if err != nil {
		m.logger.Error("failed to construct provider for callback", "error", err)
		m.redirectWithError(w, r, "callback_error", "Failed to process callback")
		return
	}

	record, err := provider.StoredState(state)
	if err != nil {
		m.redirectWithError(w, r, "invalid_state", "Invalid or expired state parameter")
		return
	}

	// The callback may be served by an instance that never issued the
	// redirect; rebuild the provider from the recorded snapshot.
	exchangeProvider, err := m.providerFromOptions(w, r, record.Options)
	if err != nil {
		m.logger.Error("failed to reconstruct provider from state record", "error", err)
		m.redirectWithError(w, r, "callback_error", "Failed to process callback")
		return
	}

	status, err := m.engine.Authorize(r.Context(), exchangeProvider, AuthorizeRequest{
		ServerURL:         record.Options.ServerURL,
		AuthorizationCode: code,
	})
	if err != nil {
		m.logger.Error("callback exchange failed", "error", err)
		m.redirectWithError(w, r, "callback_error", "Failed to process callback")
		return
	}
	if status != StatusAuthorized {
		m.redirectWithError(w, r, "auth_failed", "Authentication failed")
		return
	}

	// Tokens are saved; retire the state record rather than waiting out its
	// TTL, closing the replay window. The rebuilt provider owns the record's
	// namespace.
	exchangeProvider.ClearState(state)

	http.Redirect(w, r, m.cfg.BaseURL+"/?success=true", http.StatusFound)
}

// IsAuthenticated reports whether a token is present. Strictly "have a
// token": nearness to expiry is the refresh path's business, not this
// predicate's.
func (m *Manager) IsAuthenticated(w http.ResponseWriter, r *http.Request) bool {
	return m.GetAccessToken(w, r) != ""
}

// GetAccessToken returns the current access token or "". It never refreshes
// as a side effect.
func (m *Manager) GetAccessToken(w http.ResponseWriter, r *http.Request) string {
	provider, err := m.Provider(w, r)
	if err != nil {
		m.logger.Error("failed to construct provider", "error", err)
		return ""
	}
	tokens, ok := provider.Tokens()
	if !ok {
		return ""
	}
	return tokens.AccessToken
}

// RefreshTokenIfNeeded returns a usable access token, refreshing only when
// the stored one is within five minutes of expiry and a refresh token exists.
// "" means re-authentication is required; it is never a hard fault.
func (m *Manager) RefreshTokenIfNeeded(ctx context.Context, w http.ResponseWriter, r *http.Request) string {
	provider, err := m.Provider(w, r)
	if err != nil {
		m.logger.Error("failed to construct provider", "error", err)
		return ""
	}

	tokens, ok := provider.Tokens()
	if !ok {
		return ""
	}
	if tokens.RefreshToken == "" {
		// Nothing to refresh with; the token is good until the store expires it.
		return tokens.AccessToken
	}

	if expiresAt := tokens.ExpiresAt(); !expiresAt.IsZero() && time.Until(expiresAt) > refreshThreshold {
		return tokens.AccessToken
	}

	status, err := m.engine.Authorize(ctx, provider, AuthorizeRequest{ServerURL: m.cfg.ServerURL})
	if err != nil || status != StatusAuthorized {
		if err != nil {
			m.logger.Error("token refresh failed", "error", err)
		}
		return ""
	}

	refreshed, ok := provider.Tokens()
	if !ok {
		return ""
	}
	return refreshed.AccessToken
}

// GetAuthHeaders returns the headers downstream tool-calling collaborators
// attach to upstream requests, or nil when no token can be produced. This is
// the sole method those collaborators should use.
func (m *Manager) GetAuthHeaders(ctx context.Context, w http.ResponseWriter, r *http.Request) map[string]string {
	token := m.RefreshTokenIfNeeded(ctx, w, r)
	if token == "" {
		return nil
	}
	return map[string]string{
		"Authorization": "Bearer " + token,
		"Content-Type":  "application/json",
	}
}

// Logout clears all stored auth state for this provider's namespace. It is
// idempotent and never fails from the caller's perspective; internal errors
// are logged and swallowed.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) {
	provider, err := m.Provider(w, r)
	if err != nil {
		m.logger.Error("logout: failed to construct provider", "error", err)
		return
	}
	removed := provider.ClearStorage()
	m.logger.Info("cleared upstream auth storage", "entries_removed", removed)
}

func (m *Manager) redirectWithError(w http.ResponseWriter, r *http.Request, code, description string) {
	target := fmt.Sprintf("%s/?error=%s&description=%s",
		m.cfg.BaseURL, url.QueryEscape(code), url.QueryEscape(description))
	http.Redirect(w, r, target, http.StatusFound)
}

func initError(err error) AuthResult {
	return AuthResult{Success: false, Err: &AuthError{
		Code:    CodeInitError,
		Message: "Failed to initialize authentication",
		Details: err.Error(),
	}}
}
