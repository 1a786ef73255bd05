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

		// Protected routes: API key plus an acting owner
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Use(OwnerMiddleware)

			r.Get("/encounters", h.ListEncounters)
			r.Post("/encounters", h.CreateEncounter)
			r.Patch("/encounters/{id}", h.UpdateEncounter)
			r.Delete("/encounters/{id}", h.DeleteEncounter)

			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.PutProfile)

			r.Route("/summaries", func(r chi.Router) {
				r.Get("/visits", h.ListVisitTotals)
				r.Post("/visits", h.InsertVisitTotals)
				r.Delete("/visits", h.DeleteVisitTotals)
				r.Get("/bookings", h.ListBookingTotals)
				r.Post("/bookings", h.InsertBookingTotals)
				r.Delete("/bookings", h.DeleteBookingTotals)
				r.Get("/periods", h.ListSummaryPeriods)
			})
		})
	})

	return r
}
