// Package handlers provides HTTP handlers for index history, returns and correlations.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/degiro-portfolio/degiro-portfolio/internal/utils"
	"github.com/degiro-portfolio/degiro-portfolio/pkg/formulas"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Loader provides a consistent snapshot of the portfolio data
type Loader interface {
	Load(ctx context.Context) (*portfolio.DataContext, error)
}

// Handler handles historical data HTTP requests
type Handler struct {
	loader Loader
	log    zerolog.Logger
}

// NewHandler creates a new historical data handler
func NewHandler(loader Loader, log zerolog.Logger) *Handler {
	return &Handler{
		loader: loader,
		log:    log.With().Str("handler", "historical").Logger(),
	}
}

// ReturnPoint is the percentage change of a close against the previous close
type ReturnPoint struct {
	Date   string  `json:"date"`
	Return float64 `json:"return"`
}

// HandleGetIndices handles GET /api/historical/indices
func (h *Handler) HandleGetIndices(w http.ResponseWriter, r *http.Request) {
	dc, ok := h.load(w, r)
	if !ok {
		return
	}

	type indexSummary struct {
		domain.Index
		Closes    int      `json:"closes"`
		LastDate  *string  `json:"last_date"`
		LastClose *float64 `json:"last_close"`
	}
	out := make([]indexSummary, 0, len(dc.Indices))
	for _, idx := range dc.Indices {
		summary := indexSummary{Index: idx.Index, Closes: len(idx.Closes)}
		if n := len(idx.Closes); n > 0 {
			last := idx.Closes[n-1]
			date := last.Date.Format(domain.DateFormat)
			summary.LastDate = &date
			summary.LastClose = &last.Close
		}
		out = append(out, summary)
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"indices": out})
}

// HandleGetIndexPrices handles GET /api/historical/indices/{symbol}/prices?limit=N
func (h *Handler) HandleGetIndexPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	limit := parseLimit(r, 0)

	dc, ok := h.load(w, r)
	if !ok {
		return
	}
	idx, found := dc.Index(symbol)
	if !found {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"detail": "unknown index " + symbol})
		return
	}

	closes := idx.Closes
	if limit > 0 && len(closes) > limit {
		closes = closes[len(closes)-limit:]
	}
	if closes == nil {
		closes = []domain.PricePoint{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": idx.Index.Symbol,
		"name":   idx.Index.Name,
		"prices": closes,
		"count":  len(closes),
	})
}

// HandleGetDailyReturns handles GET /api/historical/returns/daily/{id}?limit=N
func (h *Handler) HandleGetDailyReturns(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Invalid stock id"})
		return
	}
	limit := parseLimit(r, 100)

	dc, ok := h.load(w, r)
	if !ok {
		return
	}
	if _, found := dc.Stock(id); !found {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"detail": "stock not found"})
		return
	}

	returns := calculateReturns(dc.Prices[id])
	if len(returns) > limit {
		returns = returns[len(returns)-limit:]
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stock_id": id,
		"returns":  returns,
		"count":    len(returns),
	})
}

// HandleGetCorrelationMatrix handles GET /api/historical/returns/correlation-matrix?ids=1,2,3.
// Without ids every stock with prices is included. Returns are paired on common dates.
func (h *Handler) HandleGetCorrelationMatrix(w http.ResponseWriter, r *http.Request) {
	dc, ok := h.load(w, r)
	if !ok {
		return
	}

	ids, err := utils.ParseIDs(r.URL.Query().Get("ids"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "ids must be comma separated stock ids"})
		return
	}
	if len(ids) == 0 {
		for _, s := range dc.Stocks {
			if len(dc.Prices[s.ID]) > 2 {
				ids = append(ids, s.ID)
			}
		}
	}

	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = strconv.FormatInt(id, 10)
		if s, found := dc.Stock(id); found && s.Ticker != "" {
			labels[i] = s.Ticker
		}
	}

	matrix := make([][]*float64, len(ids))
	for i := range ids {
		matrix[i] = make([]*float64, len(ids))
		for j := range ids {
			if i == j {
				one := 1.0
				matrix[i][j] = &one
				continue
			}
			if j < i {
				matrix[i][j] = matrix[j][i]
				continue
			}
			if c, ok := pairCorrelation(dc.Prices[ids[i]], dc.Prices[ids[j]]); ok {
				matrix[i][j] = &c
			}
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stock_ids": ids,
		"labels":    labels,
		"matrix":    matrix,
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*portfolio.DataContext, bool) {
	dc, err := h.loader.Load(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load portfolio data")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Failed to load portfolio data"})
		return nil, false
	}
	return dc, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func parseLimit(r *http.Request, def int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// calculateReturns calculates percentage returns from an ascending price series
func calculateReturns(prices []domain.PricePoint) []ReturnPoint {
	returns := make([]ReturnPoint, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		previous := prices[i-1].Close
		if previous <= 0 {
			continue
		}
		returns = append(returns, ReturnPoint{
			Date:   prices[i].Date.Format(domain.DateFormat),
			Return: (prices[i].Close - previous) / previous * 100,
		})
	}
	return returns
}

// pairCorrelation correlates daily returns over the dates both series share
func pairCorrelation(a, b []domain.PricePoint) (float64, bool) {
	byDate := make(map[time.Time]float64, len(b))
	for _, p := range b {
		byDate[domain.Day(p.Date)] = p.Close
	}
	var xs, ys []float64
	for _, p := range a {
		if c, ok := byDate[domain.Day(p.Date)]; ok {
			xs = append(xs, p.Close)
			ys = append(ys, c)
		}
	}
	if len(xs) < 3 {
		return 0, false
	}
	return formulas.Correlation(formulas.CalculateReturns(xs), formulas.CalculateReturns(ys)), true
}
