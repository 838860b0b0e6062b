package ecb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "dataSets": [{"series": {"0:0:0:0:0": {"observations": {
    "0": [1.0956, 0, null],
    "1": [1.0919, 0, null],
    "2": [null]
  }}}}],
  "structure": {"dimensions": {"observation": [{
    "id": "TIME_PERIOD",
    "values": [{"id": "2024-01-02"}, {"id": "2024-01-03"}, {"id": "2024-01-04"}]
  }]}}
}`

func TestDailyRates_ParsesAndMemoizes(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/D.USD.EUR.SP00.A", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("startPeriod"))
		assert.Equal(t, "jsondata", r.URL.Query().Get("format"))
		w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	client := NewClient(server.URL, zerolog.Nop())
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	rates, err := client.DailyRates(context.Background(), domain.CurrencyUSD, from, to)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), rates[0].Date)
	assert.Equal(t, 1.0956, rates[0].Rate)
	assert.Equal(t, domain.CurrencyEUR, rates[0].Base)
	assert.Equal(t, domain.CurrencyUSD, rates[0].Quote)
	assert.Equal(t, Source, rates[1].Source)

	_, err = client.DailyRates(context.Background(), domain.CurrencyUSD, from, to)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDailyRates_NotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	rates, err := NewClient(server.URL, zerolog.Nop()).DailyRates(context.Background(), domain.CurrencySEK, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, rates)
}

func TestDailyRates_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, zerolog.Nop()).DailyRates(context.Background(), domain.CurrencySEK, time.Now(), time.Now())
	assert.Error(t, err)
}

func TestDailyRates_EURIsNoop(t *testing.T) {
	rates, err := NewClient("http://unused.invalid", zerolog.Nop()).DailyRates(context.Background(), domain.CurrencyEUR, time.Now(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, rates)
}
