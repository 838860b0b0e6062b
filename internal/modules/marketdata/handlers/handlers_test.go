package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketData struct {
	result    *marketdata.UpdateResult
	updateErr error
	quotes    []marketdata.LiveQuote
	quoteErr  error
	deadline  bool
}

func (f *fakeMarketData) UpdateAll(ctx context.Context) (*marketdata.UpdateResult, error) {
	_, f.deadline = ctx.Deadline()
	return f.result, f.updateErr
}

func (f *fakeMarketData) RefreshLiveQuotes(ctx context.Context) ([]marketdata.LiveQuote, error) {
	return f.quotes, f.quoteErr
}

func (f *fakeMarketData) Status(ctx context.Context) (*marketdata.DataStatus, error) {
	return &marketdata.DataStatus{HasData: true, StocksWithPrices: 2, TotalStocks: 3, Provider: "yahoo"}, nil
}

func serve(h *Handler, method, path string) (int, map[string]interface{}) {
	router := chi.NewRouter()
	router.Route("/api", h.RegisterRoutes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))

	var body map[string]interface{}
	_ = json.NewDecoder(w.Body).Decode(&body)
	return w.Code, body
}

func TestHandleGetStatus(t *testing.T) {
	h := NewHandler(&fakeMarketData{}, 0, zerolog.Nop())

	code, body := serve(h, http.MethodGet, "/api/market-data-status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_data"])
	assert.Equal(t, float64(2), body["stocks_with_prices"])
	assert.Equal(t, float64(3), body["total_stocks"])
	assert.Contains(t, body, "last_update")
}

func TestHandleUpdate(t *testing.T) {
	fake := &fakeMarketData{result: &marketdata.UpdateResult{PricesInserted: 12, IndexPrices: 4, RatesStored: 2}}
	h := NewHandler(fake, time.Minute, zerolog.Nop())

	code, body := serve(h, http.MethodPost, "/api/update-market-data")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Updated 12 prices, 4 index closes and 2 exchange rates", body["message"])
	assert.True(t, fake.deadline)

	fake.result = &marketdata.UpdateResult{Errors: []string{"rates: boom"}}
	_, body = serve(h, http.MethodPost, "/api/update-market-data")
	assert.Equal(t, false, body["success"])

	fake.result, fake.updateErr = nil, marketdata.ErrUpdateInProgress
	code, body = serve(h, http.MethodPost, "/api/update-market-data")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, body["success"])

	fake.updateErr = context.DeadlineExceeded
	code, body = serve(h, http.MethodPost, "/api/update-market-data")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body, "message")
}

func TestHandleRefreshLivePrices(t *testing.T) {
	fake := &fakeMarketData{quotes: []marketdata.LiveQuote{{StockID: 1, Ticker: "MSFT", Price: 417.3, Currency: "USD"}}}
	h := NewHandler(fake, 0, zerolog.Nop())

	code, body := serve(h, http.MethodPost, "/api/refresh-live-prices")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	require.Len(t, body["quotes"], 1)

	fake.quotes, fake.quoteErr = nil, errors.New("provider down")
	code, body = serve(h, http.MethodPost, "/api/refresh-live-prices")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, []interface{}{}, body["quotes"])
}
