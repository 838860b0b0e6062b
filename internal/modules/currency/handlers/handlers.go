// Package handlers provides HTTP handlers for currency operations.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency"
	"github.com/rs/zerolog"
)

// RateStore lists stored exchange rates
type RateStore interface {
	List(ctx context.Context, currencies ...domain.Currency) ([]domain.ExchangeRate, error)
}

// Handler handles currency HTTP requests
type Handler struct {
	rates RateStore
	log   zerolog.Logger
}

// NewHandler creates a new currency handler
func NewHandler(rates RateStore, log zerolog.Logger) *Handler {
	return &Handler{
		rates: rates,
		log:   log.With().Str("handler", "currency").Logger(),
	}
}

// ConvertRequest represents a request to convert currency.
// Date is optional (YYYY-MM-DD); without it the latest rate is used.
type ConvertRequest struct {
	FromCurrency string  `json:"from_currency"`
	ToCurrency   string  `json:"to_currency"`
	Amount       float64 `json:"amount"`
	Date         string  `json:"date,omitempty"`
}

// HandleConvert handles POST /api/currency/convert
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	from := domain.NormalizeCurrency(req.FromCurrency)
	to := domain.NormalizeCurrency(req.ToCurrency)
	if from == "" || to == "" {
		h.writeError(w, http.StatusBadRequest, "from_currency and to_currency are required")
		return
	}

	var asOf *time.Time
	if req.Date != "" {
		d, err := time.Parse(domain.DateFormat, req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		asOf = &d
	}

	rates, err := h.rates.List(r.Context(), nonBase(from, to)...)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load exchange rates")
		h.writeError(w, http.StatusInternalServerError, "Failed to load exchange rates")
		return
	}

	conv := currency.NewNormalizer(currency.NewRateTableFrom(rates)).Convert(req.Amount, from, to, asOf)
	response := map[string]interface{}{
		"from_currency": from,
		"to_currency":   to,
		"from_amount":   req.Amount,
		"converted":     conv.Converted,
	}
	if conv.Converted {
		response["to_amount"] = conv.Amount
		response["rate"] = conv.Rate
		if conv.RateDate != nil {
			response["rate_date"] = conv.RateDate.Format(domain.DateFormat)
		}
	} else {
		response["to_amount"] = nil
		response["note"] = conv.Err.Error()
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetRates handles GET /api/currency/rates?currency=USD
func (h *Handler) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	var filter []domain.Currency
	if c := domain.NormalizeCurrency(r.URL.Query().Get("currency")); c != "" {
		filter = append(filter, c)
	}

	rates, err := h.rates.List(r.Context(), filter...)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list exchange rates")
		h.writeError(w, http.StatusInternalServerError, "Failed to list exchange rates")
		return
	}
	if rates == nil {
		rates = []domain.ExchangeRate{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"rates": rates, "count": len(rates)})
}

// HandleGetAvailableCurrencies handles GET /api/currency/available-currencies
func (h *Handler) HandleGetAvailableCurrencies(w http.ResponseWriter, r *http.Request) {
	rates, err := h.rates.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list exchange rates")
		h.writeError(w, http.StatusInternalServerError, "Failed to list exchange rates")
		return
	}

	seen := map[domain.Currency]bool{domain.BaseCurrency: true}
	for _, rate := range rates {
		seen[rate.Base] = true
		seen[rate.Quote] = true
	}
	currencies := make([]string, 0, len(seen))
	for c := range seen {
		currencies = append(currencies, string(c))
	}
	sort.Strings(currencies)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"base":       domain.BaseCurrency,
		"currencies": currencies,
	})
}

func nonBase(currencies ...domain.Currency) []domain.Currency {
	var out []domain.Currency
	for _, c := range currencies {
		if c != domain.BaseCurrency {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []domain.Currency{domain.BaseCurrency}
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
