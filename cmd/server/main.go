package main

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"taskchat/internal/api/handlers/chat"
	"taskchat/internal/api/handlers/tools"
	"taskchat/internal/api/middleware"
	"taskchat/internal/api/routes"
	"taskchat/internal/config"
	"taskchat/internal/core/chats"
	"taskchat/internal/db/postgres"
	"taskchat/internal/mcpauth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Connected to database")

	// Run migrations
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("Failed to set goose dialect:", err)
	}

	if err := goose.Up(db, "internal/db/migrations"); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	log.Println("Migrations completed successfully")

	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)

	// Rate limiting: 100 requests per minute per IP
	rateLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	r.Use(rateLimiter.Middleware)

	// Anonymous session for chat ownership
	sessionManager := middleware.NewSessionManager([]byte(cfg.CookieSecret), !cfg.DevMode)
	r.Use(sessionManager.EnsureSession)

	// Upstream auth wiring
	codec := mcpauth.NewCookieCodec([]byte(cfg.CookieSecret))
	flow := mcpauth.NewFlow()
	manager := mcpauth.NewManager(mcpauth.ManagerConfig{
		ServerURL:   cfg.UpstreamServerURL,
		CallbackURL: cfg.CallbackURL(),
		BaseURL:     cfg.PublicURL,
		ClientName:  cfg.ClientName,
		ClientURI:   cfg.ClientURI,
	}, flow, codec, !cfg.DevMode)
	authHandlers := mcpauth.NewHandlers(manager)

	// Chat persistence
	chatRepo := postgres.NewChatRepository(db)
	chatService := chats.NewChatService(chatRepo)

	routes.RegisterAuthRoutes(r, authHandlers, cfg.AllowedOrigins)
	routes.RegisterChatRoutes(r, chat.NewHandler(chatService))
	routes.RegisterToolRoutes(r, tools.NewHandler(manager, cfg.UpstreamServerURL))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	fmt.Printf("Taskchat server starting on port %s\n", cfg.Port)
	fmt.Printf("Upstream MCP server: %s\n", cfg.UpstreamServerURL)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
