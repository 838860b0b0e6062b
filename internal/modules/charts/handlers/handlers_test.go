package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/charts"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	testutil "github.com/degiro-portfolio/degiro-portfolio/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleGetChartData(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	log := zerolog.Nop()

	id, err := portfolio.NewStockRepository(db.Conn(), log).Upsert(ctx, domain.Stock{
		ISIN: "NL0010273215", Name: "ASML HOLDING", Currency: domain.CurrencyEUR,
	})
	require.NoError(t, err)
	_, err = portfolio.NewTransactionRepository(db.Conn(), log).Insert(ctx, domain.Transaction{
		StockID: id, ExecutedAt: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), Quantity: 1, Price: 600, Currency: domain.CurrencyEUR,
	})
	require.NoError(t, err)

	indices := marketdata.NewIndexRepository(db.Conn(), log)
	idx, err := indices.Ensure(ctx, "^GSPC", "S&P 500")
	require.NoError(t, err)
	_, err = indices.InsertCloses(ctx, idx.ID, []domain.PricePoint{{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 4700}})
	require.NoError(t, err)
	_, err = marketdata.NewPriceRepository(db.Conn(), log).InsertBars(ctx, id, domain.CurrencyEUR, []domain.PricePoint{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 600},
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Route("/api", NewHandler(charts.NewService(portfolio.NewLoader(db, log), log), log).RegisterRoutes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stock/"+strconv.FormatInt(id, 10)+"/chart-data", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	for _, key := range []string{"stock", "prices", "transactions", "tranches", "indices", "stock_normalized", "position_percentage", "sma_50", "sma_200"} {
		assert.Contains(t, body, key)
	}
	lines := body["indices"].([]interface{})
	require.Len(t, lines, 1)
	assert.Equal(t, "S&P 500", lines[0].(map[string]interface{})["name"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stock/999999/chart-data", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stock/x/chart-data", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/charts/sparklines?period=5Y", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/charts/sparklines?period=3D", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
