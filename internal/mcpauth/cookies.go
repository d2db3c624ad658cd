package mcpauth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

// maxCookieLength bounds encoded cookie values. Upstream access tokens can be
// large, so this is raised from securecookie's 4096 default.
const maxCookieLength = 8192

// NewCookieCodec creates the signing codec shared by all CookieStores.
// Values are HMAC-signed and base64-encoded but not encrypted: corruption and
// tampering are detected and treated as absence, the payload itself is not
// secret from the browser's owner.
func NewCookieCodec(secret []byte) *securecookie.SecureCookie {
	codec := securecookie.New(secret, nil)
	codec.MaxLength(maxCookieLength)
	return codec
}

// CookieStore is a keyed, expiring key/value store backed by the cookie jar of
// a single HTTP request/response cycle. All durable auth state lives here, so
// any process instance can complete a flow started by another.
//
// Writes are buffered in a pending overlay as well as emitted as Set-Cookie
// headers: a read later in the same request must observe an earlier write,
// and the request's Cookie header alone cannot show it.
type CookieStore struct {
	r       *http.Request
	w       http.ResponseWriter
	codec   *securecookie.SecureCookie
	secure  bool
	logger  *slog.Logger
	pending map[string]*pendingCookie
}

type pendingCookie struct {
	value   []byte
	deleted bool
}

// NewCookieStore binds a store to one request/response pair.
func NewCookieStore(codec *securecookie.SecureCookie, w http.ResponseWriter, r *http.Request, secure bool) *CookieStore {
	return &CookieStore{
		r:       r,
		w:       w,
		codec:   codec,
		secure:  secure,
		logger:  slog.Default(),
		pending: make(map[string]*pendingCookie),
	}
}

// Get returns the stored value for key. Missing, expired-by-transport, and
// corrupt entries all read as absent; corruption is logged but never surfaced
// as an error, since a broken cookie must only ever force re-authentication.
func (s *CookieStore) Get(key string) ([]byte, bool) {
	if p, ok := s.pending[key]; ok {
		if p.deleted {
			return nil, false
		}
		return p.value, true
	}

	cookie, err := s.r.Cookie(key)
	if err != nil || cookie.Value == "" {
		return nil, false
	}

	var value []byte
	if err := s.codec.Decode(key, cookie.Value, &value); err != nil {
		s.logger.Warn("discarding undecodable auth cookie", "key", key, "error", err)
		return nil, false
	}
	return value, true
}

// Set stores value under key with the given TTL. The cookie is script-proof
// (HttpOnly), cross-site-proof (SameSite=Lax) and, outside local development,
// restricted to secure transport.
func (s *CookieStore) Set(key string, value []byte, ttl time.Duration) error {
	encoded, err := s.codec.Encode(key, value)
	if err != nil {
		return err
	}

	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.pending[key] = &pendingCookie{value: value}
	return nil
}

// Delete removes key. Idempotent: deleting an absent key is a no-op.
func (s *CookieStore) Delete(key string) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.pending[key] = &pendingCookie{deleted: true}
}

// Keys returns every currently stored key that starts with prefix, including
// keys written earlier in this request and excluding keys already deleted.
func (s *CookieStore) Keys(prefix string) []string {
	seen := make(map[string]bool)
	var keys []string

	for _, cookie := range s.r.Cookies() {
		if !strings.HasPrefix(cookie.Name, prefix) {
			continue
		}
		if p, ok := s.pending[cookie.Name]; ok && p.deleted {
			continue
		}
		if !seen[cookie.Name] {
			seen[cookie.Name] = true
			keys = append(keys, cookie.Name)
		}
	}

	for name, p := range s.pending {
		if p.deleted || !strings.HasPrefix(name, prefix) {
			continue
		}
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
	}

	return keys
}
