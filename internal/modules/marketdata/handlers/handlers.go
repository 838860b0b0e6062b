// Package handlers provides HTTP handlers for market data operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// MarketData is the part of the market data service the handlers use
type MarketData interface {
	UpdateAll(ctx context.Context) (*marketdata.UpdateResult, error)
	RefreshLiveQuotes(ctx context.Context) ([]marketdata.LiveQuote, error)
	Status(ctx context.Context) (*marketdata.DataStatus, error)
}

// Handler handles market data HTTP requests
type Handler struct {
	service MarketData
	timeout time.Duration
	log     zerolog.Logger
}

// NewHandler creates a new market data handler. Updates are cut off after timeout.
func NewHandler(service MarketData, timeout time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		timeout: timeout,
		log:     log.With().Str("handler", "marketdata").Logger(),
	}
}

// HandleGetStatus handles GET /api/market-data-status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get market data status")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to get market data status"})
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// HandleUpdate handles POST /api/update-market-data
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.service.UpdateAll(ctx)
	if errors.Is(err, marketdata.ErrUpdateInProgress) {
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Market data update failed")
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": fmt.Sprintf("Market data update failed: %v", err),
			"result":  result,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": len(result.Errors) == 0,
		"message": fmt.Sprintf("Updated %d prices, %d index closes and %d exchange rates",
			result.PricesInserted, result.IndexPrices, result.RatesStored),
		"result": result,
	})
}

// HandleRefreshLivePrices handles POST /api/refresh-live-prices
func (h *Handler) HandleRefreshLivePrices(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.service.RefreshLiveQuotes(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Live price refresh failed")
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": err.Error(),
			"quotes":  []marketdata.LiveQuote{},
		})
		return
	}
	if quotes == nil {
		quotes = []marketdata.LiveQuote{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"quotes":  quotes,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
