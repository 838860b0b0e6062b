package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/market-data-status", h.HandleGetStatus)
	r.Post("/update-market-data", h.HandleUpdate)
	r.Post("/refresh-live-prices", h.HandleRefreshLivePrices)
}
