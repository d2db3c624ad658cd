package mcpclient

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"

	"taskchat/internal/mcpauth"
)

// ProviderTokenStore adapts a cookie-backed client provider to mcp-go's
// transport.TokenStore. It holds no token state of its own; every read and
// write goes through the provider, so the transport sees exactly what the
// auth flow stored for the acting browser session.
type ProviderTokenStore struct {
	provider *mcpauth.CookieProvider
}

func NewProviderTokenStore(provider *mcpauth.CookieProvider) *ProviderTokenStore {
	return &ProviderTokenStore{provider: provider}
}

// GetToken returns the stored token, or transport.ErrNoToken when none is
// available, which signals the transport to fail the request as unauthorized.
func (s *ProviderTokenStore) GetToken(ctx context.Context) (*transport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens, ok := s.provider.Tokens()
	if !ok || tokens.AccessToken == "" {
		return nil, transport.ErrNoToken
	}

	tokenType := tokens.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &transport.Token{
		AccessToken:  tokens.AccessToken,
		TokenType:    tokenType,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt(),
	}, nil
}

// SaveToken persists a token the transport obtained, typically after a
// refresh it performed itself.
func (s *ProviderTokenStore) SaveToken(ctx context.Context, token *transport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record := mcpauth.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.ExpiresAt.IsZero() {
		record.ExpiresIn = int64(time.Until(token.ExpiresAt).Seconds())
	}
	return s.provider.SaveTokens(record)
}
