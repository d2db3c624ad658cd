package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PUBLIC_URL", "https://app.example.com")
	t.Setenv("COOKIE_SECRET", strings.Repeat("s", 32))
	t.Setenv("DEV_MODE", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("CLIENT_URI", "")
}

func TestLoad(t *testing.T) {
	validEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.PublicURL)
	assert.Equal(t, "https://app.example.com/auth/upstream/callback", cfg.CallbackURL())
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, cfg.PublicURL, cfg.ClientURI)
}

func TestLoad_TrimsTrailingSlash(t *testing.T) {
	validEnv(t)
	t.Setenv("PUBLIC_URL", "https://app.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.PublicURL)
}

func TestLoad_RequiresPublicURLOutsideDev(t *testing.T) {
	validEnv(t)
	t.Setenv("PUBLIC_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_DevModeDerivesPublicURL(t *testing.T) {
	validEnv(t)
	t.Setenv("PUBLIC_URL", "")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.PublicURL)
}

func TestLoad_RejectsShortCookieSecret(t *testing.T) {
	validEnv(t)
	t.Setenv("COOKIE_SECRET", "too-short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ParsesAllowedOrigins(t *testing.T) {
	validEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}
