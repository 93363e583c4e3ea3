/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/requests/*   Request lifecycle
  /api/calendar/*   Excluded-day resolution
  /api/employees/*  Directory and balances
  /api/holidays/*   Holiday configuration
  /api/closures/*   Closure configuration
  /api/policies/*   Leave type constraints
  /api/admin/*      Balance grants

SECURITY NOTE:
  The acting employee comes from the X-Employee-ID header; credential
  checking belongs to the gateway in front. All endpoints trust the
  header.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Employee-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Request lifecycle
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.CreateRequest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRequest)
				r.Put("/", h.UpdateRequest)
				r.Delete("/", h.DeleteRequest)
				r.Get("/history", h.GetHistory)

				r.Post("/submit", h.SubmitRequest)
				r.Post("/approve", h.ApproveRequest)
				r.Post("/approve-conditional", h.ApproveConditional)
				r.Post("/condition/accept", h.AcceptCondition)
				r.Post("/condition/reject", h.RejectCondition)
				r.Post("/reject", h.RejectRequest)
				r.Post("/cancel", h.CancelRequest)
				r.Post("/revoke", h.RevokeRequest)
				r.Post("/reopen", h.ReopenRequest)
				r.Post("/recall", h.RecallRequest)
			})
		})

		// Calendar
		r.Get("/calendar/excluded-days", h.ExcludedDays)

		// Directory and balances
		r.Route("/employees", func(r chi.Router) {
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
		})

		// Configuration
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
		})
		r.Route("/closures", func(r chi.Router) {
			r.Get("/", h.ListClosures)
			r.Post("/", h.CreateClosure)
		})
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Put("/{leave_type}", h.SavePolicy)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Post("/grants", h.CreateGrant)
		})
	})

	return r
}
