package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"taskchat/internal/api/middleware"
	"taskchat/internal/mcpauth"
)

// RegisterAuthRoutes registers the upstream auth endpoints with dedicated
// rate limiting. These are stricter than the global limit to prevent:
// - Authorization flow abuse (state and verifier cookie churn)
// - Refresh token abuse
func RegisterAuthRoutes(r chi.Router, handlers *mcpauth.Handlers, allowedOrigins []string) {
	// Login and callback: 10 req/min per IP
	loginLimiter := middleware.NewRateLimiter(10, 1*time.Minute)

	// Refresh: 20 req/min per IP (slightly higher for legitimate token refresh)
	refreshLimiter := middleware.NewRateLimiter(20, 1*time.Minute)

	// Logout: 10 req/min per IP
	logoutLimiter := middleware.NewRateLimiter(10, 1*time.Minute)

	r.With(loginLimiter.Middleware).Get("/auth/upstream", handlers.HandleAuth)

	// Callback arrives as a top-level redirect from the authorization server;
	// CORS only matters if the frontend polls it cross-origin
	r.With(corsMiddleware(allowedOrigins), loginLimiter.Middleware).
		Get("/auth/upstream/callback", handlers.HandleCallback)

	r.With(logoutLimiter.Middleware).Post("/auth/upstream/logout", handlers.HandleLogout)
	r.With(refreshLimiter.Middleware).Post("/auth/upstream/refresh", handlers.HandleRefresh)
	r.Get("/auth/upstream/status", handlers.HandleStatus)
}

// corsMiddleware creates a CORS middleware with specific allowed origins
func corsMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	})
}
