package router

import (
	"net/http"

	"market-escrow-api/internal/handler"
	"market-escrow-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler      *handler.Handler
	UserHandler  *handler.UserHandler
	AdminHandler *handler.AdminHandler
	AuthHandler  *handler.AuthHandler
	AdminAuth    func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.UserHandler != nil {
			r.Get("/shop", cfg.UserHandler.Shop)

			r.Route("/users/{user_id}", func(r chi.Router) {
				r.Post("/seller", cfg.UserHandler.BecomeSeller)
				r.Post("/uploads/intent", cfg.UserHandler.SetUploadIntent)
				r.Post("/uploads", cfg.UserHandler.SubmitFile)
				r.Post("/orders", cfg.UserHandler.Buy)
				r.Get("/balance", cfg.UserHandler.Balance)
				r.Post("/withdrawals", cfg.UserHandler.RequestWithdrawal)
			})
		}

		r.Route("/admin", func(r chi.Router) {
			if cfg.AuthHandler != nil {
				r.Post("/login", cfg.AuthHandler.Login)
			}

			// Everything else behind the admin guard
			r.Group(func(r chi.Router) {
				if cfg.AdminAuth != nil {
					r.Use(cfg.AdminAuth)
				}

				if cfg.AdminHandler != nil {
					r.Post("/categories", cfg.AdminHandler.UpsertCategory)
					r.Get("/categories", cfg.AdminHandler.ListCategories)
					r.Patch("/categories/{code}", cfg.AdminHandler.PatchCategory)
					r.Post("/orders/{order_id}/deliver", cfg.AdminHandler.Deliver)
					r.Get("/orders", cfg.AdminHandler.ListOrders)
					r.Get("/stats", cfg.AdminHandler.GetStats)
				}
			})
		})
	})

	return r
}
