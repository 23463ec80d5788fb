/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for front-ends

ROUTE GROUPS:
  /api/movimientos/*   Movement ledger operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
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
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Client-Guid", "X-User-Id"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/movimientos", func(r chi.Router) {
			r.Get("/", h.ListMovements)
			r.Get("/{guid}", h.GetMovement)
			r.Get("/cliente/{clienteGuid}", h.GetClientMovements)

			r.Post("/transferencia", h.RecordTransfer)
			r.Post("/ingreso-nomina", h.RecordPayroll)
			r.Post("/pago-tarjeta", h.RecordCardPayment)
			r.Post("/domiciliacion", h.RecordDirectDebit)

			r.Delete("/transferencia/{guid}", h.ReverseTransfer)
		})
	})

	return r
}
