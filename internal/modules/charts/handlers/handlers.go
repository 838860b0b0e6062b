// Package handlers provides HTTP handlers for chart data.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/charts"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles chart HTTP requests
type Handler struct {
	service *charts.Service
	log     zerolog.Logger
}

// NewHandler creates a new charts handler
func NewHandler(service *charts.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "charts").Logger(),
	}
}

// HandleGetChartData handles GET /api/stock/{id}/chart-data?range=1Y
func (h *Handler) HandleGetChartData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid stock id"})
		return
	}

	chart, err := h.service.StockChart(r.Context(), id, r.URL.Query().Get("range"))
	if err != nil {
		if portfolio.IsNotFound(err) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"detail": err.Error()})
			return
		}
		h.log.Error().Err(err).Int64("stock_id", id).Msg("Failed to build chart data")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to build chart data"})
		return
	}
	h.writeJSON(w, http.StatusOK, chart)
}

// HandleGetSparklines handles GET /api/charts/sparklines?period=1Y|5Y
func (h *Handler) HandleGetSparklines(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1Y"
	}

	lines, err := h.service.Sparklines(r.Context(), period)
	if err != nil {
		h.log.Warn().Err(err).Str("period", period).Msg("Failed to build sparklines")
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"period": period, "sparklines": lines})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
