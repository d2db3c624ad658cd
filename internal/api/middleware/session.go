package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

const (
	sessionName     = "taskchat_session"
	sessionIDField  = "sid"
	sessionMaxAge   = 60 * 60 * 24 * 30 // 30 days
	sessionIDLength = 36                // uuid string form
)

// SessionManager assigns an anonymous session ID cookie to every visitor.
// Chats are owned by this ID; there are no user accounts.
type SessionManager struct {
	store  *sessions.CookieStore
	logger *slog.Logger
}

// NewSessionManager creates the session middleware. secure controls the
// cookie's Secure attribute and should be false only in local development.
func NewSessionManager(secret []byte, secure bool) *SessionManager {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionManager{
		store:  store,
		logger: slog.Default(),
	}
}

// EnsureSession guarantees the request carries a session ID, minting one for
// first-time visitors, and puts it on the request context.
func (m *SessionManager) EnsureSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get never fails fatally; a tampered cookie yields a fresh session.
		session, err := m.store.Get(r, sessionName)
		if err != nil {
			m.logger.Debug("replacing invalid session cookie", "error", err)
		}

		sid, ok := session.Values[sessionIDField].(string)
		if !ok || len(sid) != sessionIDLength {
			sid = uuid.NewString()
			session.Values[sessionIDField] = sid
			if err := session.Save(r, w); err != nil {
				m.logger.Error("failed to save session cookie", "error", err)
				http.Error(w, "Failed to establish session", http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionIDFromContext returns the session ID placed by EnsureSession, or ""
// when the middleware did not run.
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionIDKey).(string)
	return sid
}
