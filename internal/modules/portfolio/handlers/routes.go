package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all position routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.HandleListPositions)
		r.Post("/", h.HandleCreatePosition)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGetPosition)
			r.Patch("/", h.HandleUpdatePosition)
			r.Delete("/", h.HandleDeletePosition)
			r.Get("/snapshots", h.HandleGetPositionSnapshots)
		})
	})
}
