package mcpauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// AuthStatus is the outcome of driving the authorization-code+PKCE flow one
// step forward.
type AuthStatus string

const (
	// StatusAuthorized means valid tokens are now stored on the provider.
	StatusAuthorized AuthStatus = "authorized"

	// StatusRedirect means the browser must be sent to the authorization URL
	// (readable via the provider's LastAttemptedAuthURL).
	StatusRedirect AuthStatus = "redirect"
)

// AuthorizeRequest describes one step of the flow. Without an authorization
// code the engine obtains or refreshes tokens, preparing a redirect when it
// cannot; with one it completes the code-for-token exchange.
type AuthorizeRequest struct {
	ServerURL         string
	AuthorizationCode string
}

// Authorizer is the exchange-engine seam: the orchestrator only ever talks to
// this interface, so the wire-level engine can be swapped or mocked.
type Authorizer interface {
	Authorize(ctx context.Context, provider ClientProvider, req AuthorizeRequest) (AuthStatus, error)
}

// Flow drives the authorization-code+PKCE handshake against an upstream
// authorization server: metadata discovery, lazy dynamic client registration,
// PKCE challenge preparation, and code/refresh exchanges through
// golang.org/x/oauth2.
type Flow struct {
	discoverer *Discoverer
	logger     *slog.Logger

	// httpClient is injected into oauth2 exchanges so token requests share
	// the same timeout discipline as discovery.
	httpClient *http.Client
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowHTTPClient sets the HTTP client used for all upstream requests.
func WithFlowHTTPClient(httpClient *http.Client) FlowOption {
	return func(f *Flow) {
		f.httpClient = httpClient
		f.discoverer = NewDiscoverer(WithHTTPClient(httpClient))
	}
}

// NewFlow creates the exchange engine.
func NewFlow(opts ...FlowOption) *Flow {
	f := &Flow{
		discoverer: NewDiscoverer(),
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authorize implements Authorizer.
func (f *Flow) Authorize(ctx context.Context, provider ClientProvider, req AuthorizeRequest) (AuthStatus, error) {
	metadata, err := f.discoverer.Discover(ctx, req.ServerURL)
	if err != nil {
		return "", err
	}

	registration, err := f.ensureRegistration(ctx, provider, metadata)
	if err != nil {
		return "", err
	}

	conf := f.oauthConfig(metadata, registration, provider)

	if req.AuthorizationCode != "" {
		return f.exchangeCode(ctx, provider, conf, req.AuthorizationCode)
	}

	if tokens, ok := provider.Tokens(); ok && tokens.RefreshToken != "" {
		status, err := f.refresh(ctx, provider, conf, tokens)
		if err == nil {
			return status, nil
		}
		// A dead refresh token is recoverable: fall through and restart the
		// authorization leg.
		f.logger.Warn("token refresh failed, restarting authorization", "error", err)
	}

	return f.beginAuthorization(ctx, provider, conf)
}

// ensureRegistration returns the stored client registration, registering this
// application with the upstream on first use.
func (f *Flow) ensureRegistration(ctx context.Context, provider ClientProvider, metadata *ServerMetadata) (*ClientRegistration, error) {
	if registration, ok := provider.ClientInformation(); ok {
		return registration, nil
	}

	if metadata.RegistrationEndpoint == "" {
		return nil, ErrNoRegistrationEndpoint
	}

	registration, err := f.discoverer.RegisterClient(ctx, metadata.RegistrationEndpoint, provider.ClientMetadata())
	if err != nil {
		return nil, fmt.Errorf("dynamic client registration failed: %w", err)
	}
	if err := provider.SaveClientInformation(*registration); err != nil {
		return nil, fmt.Errorf("failed to persist client registration: %w", err)
	}

	f.logger.Info("registered OAuth client with upstream", "client_id", registration.ClientID)
	return registration, nil
}

func (f *Flow) oauthConfig(metadata *ServerMetadata, registration *ClientRegistration, provider ClientProvider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     registration.ClientID,
		ClientSecret: registration.ClientSecret,
		RedirectURL:  provider.ClientMetadata().RedirectURIs[0],
		Endpoint: oauth2.Endpoint{
			AuthURL:   metadata.AuthorizationEndpoint,
			TokenURL:  metadata.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// exchangeCode redeems an authorization code using the stored PKCE verifier
// and persists the resulting tokens.
func (f *Flow) exchangeCode(ctx context.Context, provider ClientProvider, conf *oauth2.Config, code string) (AuthStatus, error) {
	verifier, err := provider.CodeVerifier()
	if err != nil {
		return "", err
	}

	token, err := conf.Exchange(f.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return "", fmt.Errorf("authorization code exchange failed: %w", err)
	}

	if err := provider.SaveTokens(tokenRecordFromOAuth2(token)); err != nil {
		return "", fmt.Errorf("failed to persist tokens: %w", err)
	}
	return StatusAuthorized, nil
}

// refresh exchanges the refresh token for a new access token. The stored
// expiry is deliberately not consulted here: the caller decided a refresh is
// wanted, so the source token is presented as already expired.
func (f *Flow) refresh(ctx context.Context, provider ClientProvider, conf *oauth2.Config, tokens *TokenRecord) (AuthStatus, error) {
	source := conf.TokenSource(f.withHTTPClient(ctx), &oauth2.Token{
		RefreshToken: tokens.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	})

	token, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	record := tokenRecordFromOAuth2(token)
	if record.RefreshToken == "" {
		// Upstreams that do not rotate refresh tokens omit them from the
		// refresh response; keep the one we have.
		record.RefreshToken = tokens.RefreshToken
	}
	if err := provider.SaveTokens(record); err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	return StatusAuthorized, nil
}

// beginAuthorization prepares the PKCE challenge and the authorization URL,
// leaving everything the callback will need in the provider's storage.
func (f *Flow) beginAuthorization(ctx context.Context, provider ClientProvider, conf *oauth2.Config) (AuthStatus, error) {
	verifier := oauth2.GenerateVerifier()
	if err := provider.SaveCodeVerifier(verifier); err != nil {
		return "", fmt.Errorf("failed to persist code verifier: %w", err)
	}

	// The state parameter is injected by the provider, which owns the state
	// registry; the engine hands over a draft URL with everything else set.
	draft, err := url.Parse(conf.AuthCodeURL("", oauth2.S256ChallengeOption(verifier)))
	if err != nil {
		return "", fmt.Errorf("invalid authorization URL: %w", err)
	}

	if _, err := provider.PrepareAuthorizationURL(draft); err != nil {
		return "", err
	}
	return StatusRedirect, nil
}

// withHTTPClient makes oauth2 use the flow's HTTP client (and therefore its
// timeout) for token requests.
func (f *Flow) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

func tokenRecordFromOAuth2(token *oauth2.Token) TokenRecord {
	record := TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		IssuedAt:     time.Now(),
	}
	if !token.Expiry.IsZero() {
		if remaining := time.Until(token.Expiry); remaining > 0 {
			record.ExpiresIn = int64(remaining.Seconds())
		}
	}
	if scope, ok := token.Extra("scope").(string); ok {
		record.Scope = scope
	}
	return record
}
