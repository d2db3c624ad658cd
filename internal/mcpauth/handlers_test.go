package mcpauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleAuth_InvalidAction(t *testing.T) {
	h := NewHandlers(newTestManager(&fakeAuthorizer{}))

	for _, action := range []string{"", "logout", "LOGIN"} {
		w := httptest.NewRecorder()
		h.HandleAuth(w, httptest.NewRequest(http.MethodGet, "/auth/upstream?action="+action, nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, CodeInvalidAction, body["error"].(map[string]any)["code"])
	}
}

func TestHandleAuth_AlreadyAuthenticated(t *testing.T) {
	m := newTestManager(&fakeAuthorizer{})
	h := NewHandlers(m)
	r := seedTokens(t, m, TokenRecord{AccessToken: "tok", ExpiresIn: 3600})
	r.URL, _ = url.Parse("/auth/upstream?action=login")

	w := httptest.NewRecorder()
	h.HandleAuth(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Already authenticated", body["message"])
}

func TestHandleAuth_RedirectsToAuthorizationURL(t *testing.T) {
	engine := &fakeAuthorizer{outcome: func(provider ClientProvider, _ AuthorizeRequest) (AuthStatus, error) {
		draft, _ := url.Parse("https://auth.example.com/authorize?client_id=c")
		_, err := provider.PrepareAuthorizationURL(draft)
		require.NoError(t, err)
		return StatusRedirect, nil
	}}
	h := NewHandlers(newTestManager(engine))

	w := httptest.NewRecorder()
	h.HandleAuth(w, httptest.NewRequest(http.MethodGet, "/auth/upstream?action=login", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Result().Header.Get("Location"), "https://auth.example.com/authorize")
}

func TestHandleAuth_FailureEnvelope(t *testing.T) {
	engine := &fakeAuthorizer{outcome: func(ClientProvider, AuthorizeRequest) (AuthStatus, error) {
		return "", assert.AnError
	}}
	h := NewHandlers(newTestManager(engine))

	w := httptest.NewRecorder()
	h.HandleAuth(w, httptest.NewRequest(http.MethodGet, "/auth/upstream?action=login", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, CodeInitError, body["error"].(map[string]any)["code"])
}

func TestHandleLogout(t *testing.T) {
	m := newTestManager(&fakeAuthorizer{})
	h := NewHandlers(m)
	r := seedTokens(t, m, TokenRecord{AccessToken: "tok", ExpiresIn: 3600})
	r.Method = http.MethodPost

	w := httptest.NewRecorder()
	h.HandleLogout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
}

func TestHandleRefresh_Success(t *testing.T) {
	m := newTestManager(&fakeAuthorizer{})
	h := NewHandlers(m)
	// Fresh token: refresh answers success without touching the engine.
	r := seedTokens(t, m, TokenRecord{AccessToken: "tok", RefreshToken: "rt", ExpiresIn: 3600})
	r.Method = http.MethodPost

	w := httptest.NewRecorder()
	h.HandleRefresh(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Token refreshed successfully", body["message"])
}

func TestHandleRefresh_Unauthenticated(t *testing.T) {
	h := NewHandlers(newTestManager(&fakeAuthorizer{}))

	w := httptest.NewRecorder()
	h.HandleRefresh(w, httptest.NewRequest(http.MethodPost, "/auth/upstream/refresh", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, CodeRefreshFailed, body["error"].(map[string]any)["code"])
}

func TestHandleStatus_Unauthenticated(t *testing.T) {
	h := NewHandlers(newTestManager(&fakeAuthorizer{}))

	w := httptest.NewRecorder()
	h.HandleStatus(w, httptest.NewRequest(http.MethodGet, "/auth/upstream/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["authenticated"])
	assert.Nil(t, body["tokenInfo"])

	ts, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestHandleStatus_AuthenticatedNeverLeaksToken(t *testing.T) {
	m := newTestManager(&fakeAuthorizer{})
	h := NewHandlers(m)
	r := seedTokens(t, m, TokenRecord{AccessToken: "super-secret-token", ExpiresIn: 3600})

	w := httptest.NewRecorder()
	h.HandleStatus(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["authenticated"])
	tokenInfo := body["tokenInfo"].(map[string]any)
	assert.Equal(t, true, tokenInfo["hasToken"])

	assert.NotContains(t, w.Body.String(), "super-secret-token")
}

func TestHandleCallback_DelegatesToManager(t *testing.T) {
	h := NewHandlers(newTestManager(&fakeAuthorizer{}))

	w := httptest.NewRecorder()
	h.HandleCallback(w, httptest.NewRequest(http.MethodGet, "/auth/upstream/callback", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Result().Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "missing_params", loc.Query().Get("error"))
}
