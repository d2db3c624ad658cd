package mcpauth

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/url"
	"time"
)

// DefaultStoragePrefix namespaces all auth cookies when no explicit prefix is
// configured.
const DefaultStoragePrefix = "mcp-auth"

// Storage TTLs. Client registrations rarely change so they live long; verifier
// and auth-URL records are flow secrets and die with the flow.
const (
	clientInfoTTL   = 30 * 24 * time.Hour
	verifierTTL     = 10 * time.Minute
	authURLTTL      = 10 * time.Minute
	defaultTokenTTL = time.Hour
)

// TokenRecord holds the delegated-access credentials for one
// (user session, upstream server) pair. IssuedAt is set when the record is
// stored; a record without a refresh token is use-until-expiry only.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int64     `json:"expires_in,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	IssuedAt     time.Time `json:"issued_at,omitempty"`
}

// ExpiresAt returns the absolute expiry of the access token, or the zero time
// when the upstream reported no lifetime (callers treat that as already due
// for refresh).
func (t *TokenRecord) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 || t.IssuedAt.IsZero() {
		return time.Time{}
	}
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// ClientRegistration is what the upstream authorization server issued for this
// application during dynamic client registration.
type ClientRegistration struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// ClientMetadata is the public-client descriptor sent during dynamic client
// registration (RFC 7591).
type ClientMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
}

// The capability surface the flow engine requires, split so the engine can be
// mocked independently of the cookie-backed storage choice.

// ClientInfoStore persists the upstream-issued client registration.
type ClientInfoStore interface {
	ClientInformation() (*ClientRegistration, bool)
	SaveClientInformation(info ClientRegistration) error
}

// TokenAccess persists the delegated-access tokens.
type TokenAccess interface {
	Tokens() (*TokenRecord, bool)
	SaveTokens(tokens TokenRecord) error
}

// VerifierStore persists the short-lived PKCE code verifier.
type VerifierStore interface {
	SaveCodeVerifier(verifier string) error
	CodeVerifier() (string, error)
}

// AuthorizationURLPreparer finalizes a draft authorization URL: state
// injection, sanitization, and recovery caching.
type AuthorizationURLPreparer interface {
	PrepareAuthorizationURL(draft *url.URL) (string, error)
	LastAttemptedAuthURL() string
}

// ClientProvider is the full capability set one provider instance offers.
type ClientProvider interface {
	ServerURL() string
	ClientMetadata() ClientMetadata
	ClientInfoStore
	TokenAccess
	VerifierStore
	AuthorizationURLPreparer
}

// ProviderConfig configures a CookieProvider.
type ProviderConfig struct {
	ServerURL        string
	StorageKeyPrefix string
	ClientName       string
	ClientURI        string
	CallbackURL      string
}

// CookieProvider implements ClientProvider on top of a request-scoped
// CookieStore and a StateRegistry. All keys are namespaced as
// {prefix}_{serverHash}_{kind}, which lets multiple upstream integrations
// share one cookie jar without collision.
type CookieProvider struct {
	cfg        ProviderConfig
	serverHash string
	store      *CookieStore
	states     *StateRegistry
	logger     *slog.Logger
}

// NewCookieProvider builds a provider for one upstream server on one
// request's cookie store.
func NewCookieProvider(store *CookieStore, cfg ProviderConfig) (*CookieProvider, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if cfg.StorageKeyPrefix == "" {
		cfg.StorageKeyPrefix = DefaultStoragePrefix
	}

	callbackURL, err := sanitizeURL(cfg.CallbackURL)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}
	cfg.CallbackURL = callbackURL

	hash := hashServerURL(cfg.ServerURL)
	return &CookieProvider{
		cfg:        cfg,
		serverHash: hash,
		store:      store,
		states:     NewStateRegistry(store, cfg.StorageKeyPrefix, hash),
		logger:     slog.Default(),
	}, nil
}

func (p *CookieProvider) key(kind string) string {
	return fmt.Sprintf("%s_%s_%s", p.cfg.StorageKeyPrefix, p.serverHash, kind)
}

// ServerURL returns the upstream server this provider is bound to.
func (p *CookieProvider) ServerURL() string { return p.cfg.ServerURL }

// ServerHash returns the namespacing hash of the upstream server URL.
func (p *CookieProvider) ServerHash() string { return p.serverHash }

// Options returns the snapshot needed to reconstruct an equivalent provider,
// for embedding in state records.
func (p *CookieProvider) Options() ProviderOptions {
	return ProviderOptions{
		ServerURL:        p.cfg.ServerURL,
		StorageKeyPrefix: p.cfg.StorageKeyPrefix,
		ClientName:       p.cfg.ClientName,
		ClientURI:        p.cfg.ClientURI,
		CallbackURL:      p.cfg.CallbackURL,
	}
}

// ClientMetadata returns the static public-client descriptor.
func (p *CookieProvider) ClientMetadata() ClientMetadata {
	return ClientMetadata{
		RedirectURIs:            []string{p.cfg.CallbackURL},
		TokenEndpointAuthMethod: "none",
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		ClientName:              p.cfg.ClientName,
		ClientURI:               p.cfg.ClientURI,
	}
}

// ClientInformation returns the stored client registration, if any.
func (p *CookieProvider) ClientInformation() (*ClientRegistration, bool) {
	data, ok := p.store.Get(p.key("client_info"))
	if !ok {
		return nil, false
	}
	var info ClientRegistration
	if err := json.Unmarshal(data, &info); err != nil {
		p.logger.Warn("failed to parse stored client information", "prefix", p.cfg.StorageKeyPrefix, "error", err)
		return nil, false
	}
	return &info, true
}

// SaveClientInformation persists the registration with a long TTL; it rarely
// changes once issued.
func (p *CookieProvider) SaveClientInformation(info ClientRegistration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode client information: %w", err)
	}
	return p.store.Set(p.key("client_info"), data, clientInfoTTL)
}

// Tokens returns the stored token record, if any. Corrupt records read as
// absent.
func (p *CookieProvider) Tokens() (*TokenRecord, bool) {
	data, ok := p.store.Get(p.key("tokens"))
	if !ok {
		return nil, false
	}
	var tokens TokenRecord
	if err := json.Unmarshal(data, &tokens); err != nil {
		p.logger.Warn("failed to parse stored tokens", "prefix", p.cfg.StorageKeyPrefix, "error", err)
		return nil, false
	}
	return &tokens, true
}

// SaveTokens persists a token record with TTL derived from its lifetime, then
// deletes the code verifier and last-auth-URL records: the flow is complete
// and those secrets are no longer needed.
func (p *CookieProvider) SaveTokens(tokens TokenRecord) error {
	if tokens.IssuedAt.IsZero() {
		tokens.IssuedAt = time.Now()
	}

	ttl := defaultTokenTTL
	if tokens.ExpiresIn > 0 {
		ttl = time.Duration(tokens.ExpiresIn) * time.Second
	}

	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	if err := p.store.Set(p.key("tokens"), data, ttl); err != nil {
		return err
	}

	p.store.Delete(p.key("code_verifier"))
	p.store.Delete(p.key("last_auth_url"))
	return nil
}

// SaveCodeVerifier persists the PKCE verifier for the in-progress flow.
func (p *CookieProvider) SaveCodeVerifier(verifier string) error {
	return p.store.Set(p.key("code_verifier"), []byte(verifier), verifierTTL)
}

// CodeVerifier returns the stored PKCE verifier. A missing verifier is fatal
// to the exchange (ErrVerifierMissing): the authorization code cannot be
// redeemed without it and there is no way to recover one.
func (p *CookieProvider) CodeVerifier() (string, error) {
	data, ok := p.store.Get(p.key("code_verifier"))
	if !ok || len(data) == 0 {
		return "", fmt.Errorf("%w (key %s)", ErrVerifierMissing, p.key("code_verifier"))
	}
	return string(data), nil
}

// PrepareAuthorizationURL records a fresh anti-CSRF state for the draft
// authorization URL, injects it as the state query parameter, sanitizes the
// result, and caches it as the last attempted auth URL for recovery flows.
func (p *CookieProvider) PrepareAuthorizationURL(draft *url.URL) (string, error) {
	state, err := p.states.Issue(p.Options())
	if err != nil {
		return "", fmt.Errorf("failed to issue state: %w", err)
	}

	q := draft.Query()
	q.Set("state", state)
	draft.RawQuery = q.Encode()

	sanitized, err := sanitizeURL(draft.String())
	if err != nil {
		return "", fmt.Errorf("refusing unsafe authorization URL: %w", err)
	}

	if err := p.store.Set(p.key("last_auth_url"), []byte(sanitized), authURLTTL); err != nil {
		return "", err
	}
	return sanitized, nil
}

// LastAttemptedAuthURL returns the most recently prepared authorization URL,
// or "" when none is cached. Used to recover the exact redirect target
// without re-deriving it.
func (p *CookieProvider) LastAttemptedAuthURL() string {
	data, ok := p.store.Get(p.key("last_auth_url"))
	if !ok {
		return ""
	}
	sanitized, err := sanitizeURL(string(data))
	if err != nil {
		p.logger.Warn("discarding unsafe stored auth URL", "error", err)
		return ""
	}
	return sanitized
}

// StoredState looks up the record for a callback's state token.
func (p *CookieProvider) StoredState(token string) (*StateRecord, error) {
	return p.states.Consume(token)
}

// ClearState removes a state record after successful use.
func (p *CookieProvider) ClearState(token string) {
	p.states.Delete(token)
}

// ClearStorage deletes every record in this provider's namespace plus every
// state record bound to this server identity, and returns how many entries
// were removed. Safe to call when nothing is stored.
func (p *CookieProvider) ClearStorage() int {
	count := 0
	namespace := fmt.Sprintf("%s_%s_", p.cfg.StorageKeyPrefix, p.serverHash)
	for _, key := range p.store.Keys(namespace) {
		p.store.Delete(key)
		count++
	}
	// State records issued under other prefixes of the same server are still
	// bound to this identity; sweep them by embedded hash.
	count += p.states.PurgeForServer(p.serverHash)
	return count
}

// hashServerURL derives the namespacing fingerprint of an upstream server URL.
// FNV-1a: deterministic and cheap. Never used for security decisions.
func hashServerURL(serverURL string) string {
	h := fnv.New32a()
	h.Write([]byte(serverURL))
	return fmt.Sprintf("%x", h.Sum32())
}

// sanitizeURL rejects URLs that could smuggle script or credentials into a
// redirect: only http/https schemes, no embedded userinfo, no control
// characters.
func sanitizeURL(raw string) (string, error) {
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("URL contains control characters")
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.User != nil {
		return "", fmt.Errorf("URL contains embedded credentials")
	}
	return u.String(), nil
}
