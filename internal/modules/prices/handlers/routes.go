package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all price routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Post("/", h.HandleUpdatePrice)
		r.Post("/batch", h.HandleUpdatePrices)
	})
}
