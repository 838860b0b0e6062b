package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all historical data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/historical", func(r chi.Router) {
		r.Get("/indices", h.HandleGetIndices)
		r.Get("/indices/{symbol}/prices", h.HandleGetIndexPrices)

		r.Route("/returns", func(r chi.Router) {
			r.Get("/daily/{id}", h.HandleGetDailyReturns)
			r.Get("/correlation-matrix", h.HandleGetCorrelationMatrix)
		})
	})
}
