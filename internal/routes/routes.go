// Package routes wires handlers and middleware onto the chi router.
package routes

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/flitdev/flit/internal/auth"
	"github.com/flitdev/flit/internal/config"
	"github.com/flitdev/flit/internal/files"
	"github.com/flitdev/flit/internal/handlers"
	appmiddleware "github.com/flitdev/flit/internal/middleware"
	"github.com/flitdev/flit/internal/messages"
	"github.com/flitdev/flit/internal/realtime"
	"github.com/flitdev/flit/internal/storage"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"gorm.io/gorm"
)

// Deps carries everything the router needs. Constructed once in main and in
// tests.
type Deps struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Backend  storage.Backend
	Files    *files.Service
	Messages *messages.Service
	Tokens   auth.TokenStore
	Hub      *realtime.Hub
}

// Setup configures all HTTP routes and middleware on the provided router.
// The REST surface under /api/files and /api/messages is gated on a bearer
// token; /, /health, /metrics, /ws and the login endpoints are open.
func Setup(r chi.Router, deps Deps) {
	fileHandler := handlers.NewFileHandler(deps.Files, deps.Cfg)
	messageHandler := handlers.NewMessageHandler(deps.Messages, deps.Files, deps.Cfg)
	authHandler := handlers.NewAuthHandler(deps.Tokens, deps.Cfg)
	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Cfg)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Backend)
	systemHandler := handlers.NewSystemHandler(deps.Cfg)

	development := deps.Cfg.Env == "development"

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(appmiddleware.Recover(development))
	r.Use(appmiddleware.LoggingMiddleware)
	r.Use(appmiddleware.SecurityHeaders)

	if len(deps.Cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   deps.Cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}).Handler)
	}

	// Allow 5 login attempts per 15 minutes per IP
	loginLimiter := tollbooth.NewLimiter(5.0/900.0, &limiter.ExpirableOptions{
		DefaultExpirationTTL: 15 * time.Minute,
	})
	loginLimiter.SetMessage("Too many requests. Please try again later.")

	r.Get("/", systemHandler.Root)
	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/system/info", systemHandler.Info)

	r.Get("/ws", wsHandler.Serve)
	r.Get("/ws/stats", wsHandler.Stats)

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return tollbooth.LimitHandler(loginLimiter, next)
			})
			r.Post("/login", authHandler.Login)
		})
		r.Post("/logout", authHandler.Logout)
		r.Get("/status", authHandler.Status)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(deps.Tokens))
			r.Get("/verify", authHandler.Verify)
		})
	})

	r.Route("/api/files", func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Tokens))
		r.Post("/upload", fileHandler.Upload)
		r.Get("/", fileHandler.List)
		r.Get("/stats", fileHandler.Stats)
		r.Get("/{id}/download", fileHandler.Download)
		r.Get("/{id}/info", fileHandler.Info)
		r.Delete("/{id}", fileHandler.Delete)
	})

	r.Route("/api/messages", func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Tokens))
		r.Post("/text", messageHandler.SendText)
		r.Post("/file", messageHandler.SendFile)
		r.Post("/upload-and-send", messageHandler.UploadAndSend)
		r.Get("/", messageHandler.List)
		r.Get("/stats/summary", messageHandler.StatsSummary)
		r.Get("/{id}", messageHandler.Get)
		r.Delete("/{id}", messageHandler.Delete)
		r.Put("/{id}/status", messageHandler.UpdateStatus)
	})
}
