package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jgutierrezgil/guardiapass/internal/config"
	"github.com/jgutierrezgil/guardiapass/internal/middleware"
	"github.com/jgutierrezgil/guardiapass/internal/services"
	"github.com/jgutierrezgil/guardiapass/internal/store"
)

// Dependencies holds all the dependencies needed for handlers.
type Dependencies struct {
	Config        *config.Config
	Store         store.Store
	Redis         *redis.Client // nil when sessions are kept in memory
	RateLimiter   middleware.Limiter
	Logger        *slog.Logger
	UserService   *services.UserService
	AuthService   *services.AuthService
	RecordService *services.RecordService
	AuditService  *services.AuditService
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()
	maxBody := deps.Config.Security.MaxRequestBodySize
	secureCookies := deps.Config.Server.SecureCookies

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Metrics())
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.Recovery())
	if deps.Config.Server.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(deps.Config.Server.RequestTimeout))
	}
	r.Use(middleware.SecurityHeaders(deps.Config.IsProduction()))

	r.NotFound(NotFoundHandler)
	r.MethodNotAllowed(MethodNotAllowedHandler)

	// Create handlers
	healthHandler := NewHealthHandler(deps.Store, deps.Redis)
	authHandler := NewAuthHandler(deps.UserService, deps.AuthService, deps.AuditService, secureCookies, maxBody)
	apiHandler := NewAPIHandler(deps.RecordService, deps.AuditService, maxBody)
	toolsHandler := NewToolsHandler(maxBody)

	sessionAuth := middleware.SessionAuth(deps.AuthService, secureCookies)
	rateLimit := middleware.RateLimit(deps.RateLimiter)

	// Health checks and metrics (no auth, no rate limit)
	r.Get("/health", healthHandler.Liveness)
	r.Get("/ready", healthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(maxBody))
		r.Use(middleware.RequireJSON())

		// Auth routes (rate limited per client to slow guessing)
		r.Route("/auth", func(r chi.Router) {
			r.With(rateLimit).Post("/register", authHandler.Register)
			r.With(rateLimit).Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(sessionAuth)
				r.Use(rateLimit)
				r.Get("/me", authHandler.Me)
				r.Post("/logout", authHandler.Logout)
				r.Post("/master-password", authHandler.ChangeMasterPassword)
				r.Delete("/account", authHandler.DeleteAccount)
			})
		})

		// API v1 routes
		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/passwords", func(r chi.Router) {
				// Stateless tools
				r.Group(func(r chi.Router) {
					r.Use(rateLimit)
					r.Post("/generate", toolsHandler.Generate)
					r.Post("/check-strength", toolsHandler.CheckStrength)
					r.Post("/validate", toolsHandler.ValidatePassword)
				})

				// Records
				r.Group(func(r chi.Router) {
					r.Use(sessionAuth)
					r.Use(rateLimit)
					r.Get("/", apiHandler.ListRecords)
					r.Post("/", apiHandler.CreateRecord)
					r.Get("/{id}", apiHandler.GetRecord)
					r.Put("/{id}", apiHandler.UpdateRecord)
					r.Delete("/{id}", apiHandler.DeleteRecord)
				})
			})

			r.With(sessionAuth, rateLimit).Get("/audit", apiHandler.ListAuditLogs)
		})
	})

	return r
}
