package mcpauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverer_OIDCFallback(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
		})
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	d := NewDiscoverer()
	metadata, err := d.Discover(context.Background(), server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/authorize", metadata.AuthorizationEndpoint)
	assert.Equal(t, server.URL+"/token", metadata.TokenEndpoint)
}

func TestDiscoverer_CachesMetadata(t *testing.T) {
	var hits atomic.Int32
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 server.URL,
			"authorization_endpoint": server.URL + "/authorize",
			"token_endpoint":         server.URL + "/token",
		})
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	d := NewDiscoverer()
	for i := 0; i < 3; i++ {
		_, err := d.Discover(context.Background(), server.URL+"/mcp")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())

	// Different paths on the same origin share one discovery.
	_, err := d.Discover(context.Background(), server.URL+"/sse")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	d.ClearCache()
	_, err = d.Discover(context.Background(), server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDiscoverer_RejectsIncompleteMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "https://x"})
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := NewDiscoverer()
	_, err := d.Discover(context.Background(), server.URL+"/mcp")
	assert.Error(t, err)
}

func TestServerOrigin(t *testing.T) {
	origin, err := serverOrigin("https://mcp.example.com/mcp")
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.example.com", origin)

	origin, err = serverOrigin("http://localhost:8080/sse?x=1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", origin)

	_, err = serverOrigin("ftp://example.com")
	assert.Error(t, err)
}
