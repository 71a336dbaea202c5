/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for operational tooling

ROUTE GROUPS:
  /api/accounts/*  Account, ledger and delinquency operations
  /api/cob/*       Catch-up coordination
  /api/locks/*     Account lock administration
  /metrics         Prometheus scrape endpoint (when provided)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. metricsHandler
// may be nil, in which case /metrics is not mounted.
func NewRouter(h *Handler, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Post("/{id}/approve", h.ApproveAccount)
			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/schedule", h.GetSchedule)
			r.Get("/{id}/delinquency", h.GetDelinquency)
			r.Get("/{id}/transactions", h.ListTransactions)
			r.Post("/{id}/transactions", h.PostTransaction)
			r.Post("/{id}/transactions/{txId}/adjust", h.AdjustTransaction)
			r.Post("/{id}/delinquency-actions", h.DelinquencyAction)
		})

		// COB routes
		r.Route("/cob", func(r chi.Router) {
			r.Post("/catch-up", h.StartCatchUp)
			r.Get("/status", h.CatchUpStatus)
			r.Get("/oldest", h.OldestProcessed)
			r.Post("/inline", h.InlineCatchUp)
		})

		// Lock routes
		r.Route("/locks", func(r chi.Router) {
			r.Get("/", h.ListLocks)
			r.Post("/", h.PlaceLock)
			r.Delete("/{accountId}", h.RemoveLock)
		})
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}
