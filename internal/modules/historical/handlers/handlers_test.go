package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	dc  *portfolio.DataContext
	err error
}

func (f fakeLoader) Load(ctx context.Context) (*portfolio.DataContext, error) {
	return f.dc, f.err
}

func series(closes ...float64) []domain.PricePoint {
	out := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = domain.PricePoint{Date: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), Close: c}
	}
	return out
}

func setupRouter(loader Loader) *chi.Mux {
	router := chi.NewRouter()
	router.Route("/api", NewHandler(loader, zerolog.Nop()).RegisterRoutes)
	return router
}

func request(t *testing.T, router http.Handler, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func testLoader() fakeLoader {
	return fakeLoader{dc: &portfolio.DataContext{
		Today: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Stocks: []domain.Stock{
			{ID: 1, Name: "A", Ticker: "AAA"},
			{ID: 2, Name: "B", Ticker: "BBB"},
			{ID: 3, Name: "C"},
		},
		Prices: map[int64][]domain.PricePoint{
			1: series(100, 110, 99, 120),
			2: series(50, 55, 49.5, 60),
			3: series(10, 9, 11, 8),
		},
		Indices: []portfolio.IndexSeries{{
			Index:  domain.Index{ID: 1, Symbol: "^GSPC", Name: "S&P 500"},
			Closes: series(4700, 4750, 4800),
		}},
		Rates: currency.NewRateTable(),
	}}
}

func TestHandleGetIndices(t *testing.T) {
	code, body := request(t, setupRouter(testLoader()), "/api/historical/indices")
	require.Equal(t, http.StatusOK, code)

	indices := body["indices"].([]interface{})
	require.Len(t, indices, 1)
	idx := indices[0].(map[string]interface{})
	assert.Equal(t, "^GSPC", idx["symbol"])
	assert.Equal(t, float64(3), idx["closes"])
	assert.Equal(t, "2024-01-03", idx["last_date"])
	assert.Equal(t, 4800.0, idx["last_close"])
}

func TestHandleGetIndexPrices(t *testing.T) {
	router := setupRouter(testLoader())

	code, body := request(t, router, "/api/historical/indices/%5EGSPC/prices?limit=2")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, "S&P 500", body["name"])

	code, _ = request(t, router, "/api/historical/indices/%5EFTSE/prices")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandleGetDailyReturns(t *testing.T) {
	router := setupRouter(testLoader())

	code, body := request(t, router, "/api/historical/returns/daily/1")
	require.Equal(t, http.StatusOK, code)
	returns := body["returns"].([]interface{})
	require.Len(t, returns, 3)
	first := returns[0].(map[string]interface{})
	assert.Equal(t, "2024-01-02", first["date"])
	assert.InDelta(t, 10.0, first["return"], 1e-9)

	code, body = request(t, router, "/api/historical/returns/daily/1?limit=1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = request(t, router, "/api/historical/returns/daily/9")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandleGetCorrelationMatrix(t *testing.T) {
	router := setupRouter(testLoader())

	code, body := request(t, router, "/api/historical/returns/correlation-matrix?ids=1,2,3")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"AAA", "BBB", "3"}, body["labels"])

	matrix := body["matrix"].([]interface{})
	row0 := matrix[0].([]interface{})
	assert.Equal(t, 1.0, row0[0])
	// B moves exactly like A
	assert.InDelta(t, 1.0, row0[1], 1e-9)
	assert.Less(t, row0[2].(float64), 0.0)
	assert.Equal(t, row0[2], matrix[2].([]interface{})[0])

	code, _ = request(t, router, "/api/historical/returns/correlation-matrix?ids=1,x")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = request(t, router, "/api/historical/returns/correlation-matrix")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["stock_ids"], 3)
}

func TestLoadFailure(t *testing.T) {
	code, _ := request(t, setupRouter(fakeLoader{err: errors.New("disk gone")}), "/api/historical/indices")
	assert.Equal(t, http.StatusInternalServerError, code)
}
