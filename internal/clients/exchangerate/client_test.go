package exchangerate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/degiro-portfolio/degiro-portfolio/internal/clientdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return clientdata.NewRepository(db.Conn())
}

func TestLatestRates_FetchesAndCaches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/EUR", r.URL.Path)
		w.Write([]byte(`{"base":"EUR","rates":{"EUR":1,"USD":1.08,"sek":11.5}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, newCache(t), zerolog.Nop())

	rates, err := client.LatestRates(context.Background(), domain.CurrencyEUR)
	require.NoError(t, err)
	assert.Equal(t, 1.08, rates[domain.CurrencyUSD])
	assert.Equal(t, 11.5, rates[domain.CurrencySEK])

	rate, err := client.GetRate(context.Background(), domain.CurrencyEUR, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, 1.08, rate)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call must be served from cache")
}

func TestLatestRates_StaleFallback(t *testing.T) {
	cache := newCache(t)
	require.NoError(t, cache.Store(clientdata.TableExchangeRate, "EUR", cachedRates{Rates: map[string]float64{"USD": 1.05}}, -1))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, cache, zerolog.Nop())
	rates, err := client.LatestRates(context.Background(), domain.CurrencyEUR)

	require.NoError(t, err)
	assert.Equal(t, 1.05, rates[domain.CurrencyUSD])
}

func TestLatestRates_ErrorWithoutCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())
	_, err := client.LatestRates(context.Background(), domain.CurrencyEUR)
	assert.Error(t, err)
}

func TestGetRate_SameCurrency(t *testing.T) {
	client := NewClient("http://unused.invalid", nil, zerolog.Nop())
	rate, err := client.GetRate(context.Background(), domain.CurrencyUSD, domain.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}
