package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rudironsoni/Synaxis-sub005/app"
	"github.com/rudironsoni/Synaxis-sub005/handlers"
	"github.com/rudironsoni/Synaxis-sub005/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware. No global timeout: streamed completions legitimately
	// run past any fixed budget, so only the admin group carries one.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{
			"X-Request-ID",
			utils.HeaderModelRequested,
			utils.HeaderModelResolved,
			utils.HeaderProvider,
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	chatHandler := handlers.NewChatHandler(deps.Orchestrator, deps.Logger)
	modelsHandler := handlers.NewModelsHandler(deps.Catalog, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Catalog, deps.Breaker, deps.Audit, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Catalog, deps.Logger)

	// Health probes
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/ready", healthHandler.HandleReadiness)

	// OpenAI-compatible surface (requires a tenant credential)
	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.TenantAuth.RequireTenant)
		r.Post("/chat/completions", chatHandler.HandleChatCompletion)
		r.Get("/models", modelsHandler.HandleListModels)
	})

	// Operator surface (requires the admin token)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(deps.AdminAuth)
		r.Post("/catalog/reload", adminHandler.HandleReloadCatalog)
		r.Get("/providers", adminHandler.HandleListProviders)
		r.Post("/providers/{name}/breaker/reset", adminHandler.HandleResetBreaker)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
