// Package handlers provides HTTP handlers for holdings, valuation and imports.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/importer"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// MaxUploadBytes bounds the size of an uploaded export
const MaxUploadBytes = 32 << 20

// Importer stores an uploaded transaction export
type Importer interface {
	Import(ctx context.Context, filename string, r io.Reader) (*importer.ImportResult, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	service  *portfolio.Service
	importer Importer
	log      zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, importer Importer, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		importer: importer,
		log:      log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetHoldings handles GET /api/holdings
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.service.Holdings(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list holdings")
		h.writeError(w, http.StatusInternalServerError, "Failed to list holdings")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"holdings": holdings})
}

// HandleGetStockPrices handles GET /api/stock/{id}/prices
func (h *Handler) HandleGetStockPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := h.stockID(w, r)
	if !ok {
		return
	}
	prices, err := h.service.StockPrices(r.Context(), id)
	if err != nil {
		h.handleStockError(w, err, id)
		return
	}
	if prices == nil {
		prices = []domain.PricePoint{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"prices": prices})
}

// HandleGetStockTransactions handles GET /api/stock/{id}/transactions
func (h *Handler) HandleGetStockTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.stockID(w, r)
	if !ok {
		return
	}
	txs, err := h.service.StockTransactions(r.Context(), id)
	if err != nil {
		h.handleStockError(w, err, id)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// HandleGetStockTranches handles GET /api/stock/{id}/tranches
func (h *Handler) HandleGetStockTranches(w http.ResponseWriter, r *http.Request) {
	id, ok := h.stockID(w, r)
	if !ok {
		return
	}
	views, err := h.service.StockTranches(r.Context(), id)
	if err != nil {
		var insufficient *domain.InsufficientHoldingsError
		if errors.As(err, &insufficient) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.handleStockError(w, err, id)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"tranches": views})
}

// HandleGetPerformance handles GET /api/portfolio-performance
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Performance(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute performance")
		h.writeError(w, http.StatusInternalServerError, "Failed to compute performance")
		return
	}
	if rows == nil {
		rows = []portfolio.StockPerformance{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"stocks": rows})
}

// HandleGetValuationHistory handles GET /api/portfolio-valuation-history
func (h *Handler) HandleGetValuationHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.ValuationHistory(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute valuation history")
		h.writeError(w, http.StatusInternalServerError, "Failed to compute valuation history")
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// HandlePurge handles POST /api/purge-database
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Purge(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to purge database")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "All portfolio data deleted",
		"deleted": result,
	})
}

// HandleUpload handles POST /api/upload-transactions (multipart field "file")
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	result, err := h.importer.Import(r.Context(), header.Filename, file)
	if err != nil {
		h.log.Warn().Err(err).Str("file", header.Filename).Msg("Import failed")
		status := http.StatusInternalServerError
		if errors.Is(err, importer.ErrUnsupportedFormat) {
			status = http.StatusBadRequest
		}
		h.writeJSON(w, status, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": strconv.Itoa(result.Inserted) + " new transactions imported",
		"result":  result,
	})
}

func (h *Handler) stockID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "Invalid stock id")
		return 0, false
	}
	return id, true
}

func (h *Handler) handleStockError(w http.ResponseWriter, err error, id int64) {
	if portfolio.IsNotFound(err) {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.log.Error().Err(err).Int64("stock_id", id).Msg("Stock request failed")
	h.writeError(w, http.StatusInternalServerError, "Internal error")
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
