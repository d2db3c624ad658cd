package mcpauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// defaultHTTPTimeout is the timeout for discovery and registration requests.
	defaultHTTPTimeout = 30 * time.Second

	// metadataCacheTTL is how long discovered server metadata is reused before
	// the well-known endpoint is consulted again.
	metadataCacheTTL = 30 * time.Minute
)

// ServerMetadata is the subset of OAuth 2.0 Authorization Server Metadata
// (RFC 8414) this client needs.
type ServerMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

type metadataCacheEntry struct {
	metadata  *ServerMetadata
	fetchedAt time.Time
}

// Discoverer resolves and caches OAuth server metadata for upstream servers,
// and performs dynamic client registration (RFC 7591).
type Discoverer struct {
	httpClient *http.Client
	logger     *slog.Logger

	cacheMu sync.RWMutex
	cache   map[string]*metadataCacheEntry

	// Deduplicates concurrent fetches for the same origin.
	group singleflight.Group
}

// DiscovererOption configures a Discoverer.
type DiscovererOption func(*Discoverer)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) DiscovererOption {
	return func(d *Discoverer) { d.httpClient = httpClient }
}

// NewDiscoverer creates a metadata discovery client.
func NewDiscoverer(opts ...DiscovererOption) *Discoverer {
	d := &Discoverer{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     slog.Default(),
		cache:      make(map[string]*metadataCacheEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover fetches OAuth metadata for the origin of serverURL. It tries
// RFC 8414 (/.well-known/oauth-authorization-server) first and falls back to
// OpenID Connect discovery. Results are cached with a TTL.
func (d *Discoverer) Discover(ctx context.Context, serverURL string) (*ServerMetadata, error) {
	origin, err := serverOrigin(serverURL)
	if err != nil {
		return nil, err
	}

	d.cacheMu.RLock()
	if entry, ok := d.cache[origin]; ok && time.Since(entry.fetchedAt) < metadataCacheTTL {
		d.cacheMu.RUnlock()
		return entry.metadata, nil
	}
	d.cacheMu.RUnlock()

	result, err, _ := d.group.Do(origin, func() (interface{}, error) {
		d.cacheMu.RLock()
		if entry, ok := d.cache[origin]; ok && time.Since(entry.fetchedAt) < metadataCacheTTL {
			d.cacheMu.RUnlock()
			return entry.metadata, nil
		}
		d.cacheMu.RUnlock()

		return d.doDiscover(ctx, origin)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ServerMetadata), nil
}

func (d *Discoverer) doDiscover(ctx context.Context, origin string) (*ServerMetadata, error) {
	metadata, err := d.fetchMetadata(ctx, origin+"/.well-known/oauth-authorization-server")
	if err == nil {
		d.cacheMetadata(origin, metadata)
		return metadata, nil
	}

	d.logger.Debug("RFC 8414 metadata fetch failed, trying OIDC discovery", "origin", origin, "error", err)

	metadata, err = d.fetchMetadata(ctx, origin+"/.well-known/openid-configuration")
	if err == nil {
		d.cacheMetadata(origin, metadata)
		return metadata, nil
	}

	return nil, fmt.Errorf("failed to discover OAuth metadata for %s: %w", origin, err)
}

func (d *Discoverer) fetchMetadata(ctx context.Context, metadataURL string) (*ServerMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var metadata ServerMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if metadata.AuthorizationEndpoint == "" || metadata.TokenEndpoint == "" {
		return nil, fmt.Errorf("metadata missing authorization or token endpoint")
	}
	return &metadata, nil
}

func (d *Discoverer) cacheMetadata(origin string, metadata *ServerMetadata) {
	d.cacheMu.Lock()
	d.cache[origin] = &metadataCacheEntry{metadata: metadata, fetchedAt: time.Now()}
	d.cacheMu.Unlock()

	d.logger.Debug("cached OAuth metadata",
		"origin", origin,
		"authorization_endpoint", metadata.AuthorizationEndpoint,
		"token_endpoint", metadata.TokenEndpoint)
}

// RegisterClient performs dynamic client registration against the server's
// registration endpoint and returns the issued registration.
func (d *Discoverer) RegisterClient(ctx context.Context, registrationEndpoint string, meta ClientMetadata) (*ClientRegistration, error) {
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode client metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		d.logger.Debug("client registration failed", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("client registration failed with status %d", resp.StatusCode)
	}

	var registration ClientRegistration
	if err := json.Unmarshal(body, &registration); err != nil {
		return nil, fmt.Errorf("failed to parse registration response: %w", err)
	}
	if registration.ClientID == "" {
		return nil, fmt.Errorf("registration response missing client_id")
	}
	return &registration, nil
}

// ClearCache drops all cached metadata. Useful in tests.
func (d *Discoverer) ClearCache() {
	d.cacheMu.Lock()
	d.cache = make(map[string]*metadataCacheEntry)
	d.cacheMu.Unlock()
}

// serverOrigin strips path, query and fragment from an upstream server URL.
// MCP servers expose transport paths like /mcp or /sse; discovery happens at
// the origin.
func serverOrigin(serverURL string) (string, error) {
	sanitized, err := sanitizeURL(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	u, err := url.Parse(sanitized)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	return u.Scheme + "://" + u.Host, nil
}
