package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/holdings", h.HandleGetHoldings)

	r.Get("/stock/{id}/prices", h.HandleGetStockPrices)
	r.Get("/stock/{id}/transactions", h.HandleGetStockTransactions)
	r.Get("/stock/{id}/tranches", h.HandleGetStockTranches)

	r.Get("/portfolio-performance", h.HandleGetPerformance)
	r.Get("/portfolio-valuation-history", h.HandleGetValuationHistory)

	r.Post("/upload-transactions", h.HandleUpload)
	r.Post("/purge-database", h.HandlePurge)
}
