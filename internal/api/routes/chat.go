package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"taskchat/internal/api/handlers/chat"
	"taskchat/internal/api/handlers/tools"
	"taskchat/internal/api/middleware"
)

// RegisterChatRoutes registers the chat CRUD API. All chat routes require a
// session, which the session middleware guarantees.
func RegisterChatRoutes(r chi.Router, handler *chat.Handler) {
	r.Route("/api/chats", func(r chi.Router) {
		r.Post("/", handler.HandleCreate)
		r.Get("/", handler.HandleList)
		r.Get("/{chatID}", handler.HandleGet)
		r.Patch("/{chatID}", handler.HandleRename)
		r.Delete("/{chatID}", handler.HandleDelete)
		r.Post("/{chatID}/messages", handler.HandleAppendMessage)
	})
}

// RegisterToolRoutes registers the upstream tool proxy. Tool calls fan out to
// the remote server, so they get their own rate limit.
func RegisterToolRoutes(r chi.Router, handler *tools.Handler) {
	// 30 req/min per IP; each request opens an upstream connection
	toolLimiter := middleware.NewRateLimiter(30, 1*time.Minute)

	r.With(toolLimiter.Middleware).Get("/api/tools", handler.HandleList)
	r.With(toolLimiter.Middleware).Post("/api/tools/call", handler.HandleCall)
}
