package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)
		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/password-reset", h.PasswordReset)
		r.Get("/images/{name}", h.GetImage)

		// Protected routes (bearer token required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.accounts))
			r.Route("/collections/{collection}", func(r chi.Router) {
				r.Get("/documents", h.ListDocuments)
				r.Post("/documents", h.AddDocument)
				r.Put("/documents/{id}", h.SetDocument)
				r.Delete("/documents/{id}", h.DeleteDocument)
				r.Get("/watch", h.WatchCollection)
			})
			r.Post("/images", h.UploadImage)
			r.Delete("/images/{name}", h.DeleteImage)
		})
	})

	return r
}
