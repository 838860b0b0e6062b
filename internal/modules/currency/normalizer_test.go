package currency

import (
	"errors"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time {
	return &t
}

// EUR/USD: 1 EUR = rate USD
func usdTable() *RateTable {
	table := NewRateTable()
	table.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(5), 1.10)
	table.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(2), 1.05)
	table.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(10), 1.20)
	return table
}

func TestConvert_SameCurrencyIsIdentity(t *testing.T) {
	n := NewNormalizer(NewRateTable())

	for _, amount := range []float64{0, -12.5, 1e9, 3.14159} {
		for _, c := range []domain.Currency{domain.CurrencyEUR, domain.CurrencyUSD, "XYZ"} {
			got := n.Convert(amount, c, c, ptr(day(3)))
			assert.True(t, got.Converted)
			assert.Equal(t, amount, got.Amount)
			assert.Equal(t, c, got.Currency)
		}
	}
}

func TestConvert_CaseInsensitiveIdentity(t *testing.T) {
	n := NewNormalizer(nil)
	got := n.Convert(10, "eur", "EUR", nil)
	assert.True(t, got.Converted)
	assert.Equal(t, 10.0, got.Amount)
}

func TestConvert_ExactDateUsesInversePair(t *testing.T) {
	n := NewNormalizer(usdTable())

	got := n.ToBase(110, domain.CurrencyUSD, ptr(day(5)))

	require.True(t, got.Converted)
	assert.InDelta(t, 100.0, got.Amount, 1e-9)
	assert.Equal(t, domain.CurrencyEUR, got.Currency)
	assert.Equal(t, day(5), *got.RateDate)
}

func TestConvert_NearestEarlierRate(t *testing.T) {
	n := NewNormalizer(usdTable())

	got := n.Convert(100, domain.CurrencyEUR, domain.CurrencyUSD, ptr(day(8)))

	require.True(t, got.Converted)
	assert.InDelta(t, 110.0, got.Amount, 1e-9)
	assert.Equal(t, day(5), *got.RateDate)
}

func TestConvert_BeforeFirstRateFallsBackToLatest(t *testing.T) {
	n := NewNormalizer(usdTable())

	got := n.Convert(100, domain.CurrencyEUR, domain.CurrencyUSD, ptr(day(1)))

	require.True(t, got.Converted)
	assert.InDelta(t, 120.0, got.Amount, 1e-9)
	assert.Equal(t, day(10), *got.RateDate)
}

func TestConvert_NoDateUsesNewestRate(t *testing.T) {
	table := usdTable()
	// the daily live rate is stored as a dated point by the rates sync
	table.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(11), 1.25)
	n := NewNormalizer(table)

	got := n.Convert(100, domain.CurrencyEUR, domain.CurrencyUSD, nil)
	assert.InDelta(t, 125.0, got.Amount, 1e-9)

	got = n.Convert(100, domain.CurrencyEUR, domain.CurrencyUSD, ptr(day(6)))
	assert.InDelta(t, 110.0, got.Amount, 1e-9)
}

func TestConvert_MissingRateIsFlaggedNotFabricated(t *testing.T) {
	n := NewNormalizer(usdTable())

	got := n.ToBase(500, domain.CurrencySEK, ptr(day(3)))

	assert.False(t, got.Converted)
	assert.Equal(t, 500.0, got.Amount)
	assert.Equal(t, domain.CurrencySEK, got.Currency)
	assert.Zero(t, got.Rate)

	var missing *domain.MissingRateError
	require.True(t, errors.As(got.Err, &missing))
	assert.Equal(t, domain.CurrencySEK, missing.From)
	assert.Equal(t, domain.CurrencyEUR, missing.To)
}

func TestConvert_CrossRateThroughEUR(t *testing.T) {
	table := usdTable()
	table.Add(domain.CurrencyEUR, domain.CurrencySEK, day(5), 11.0)
	n := NewNormalizer(table)

	// 110 USD = 100 EUR = 1100 SEK
	got := n.Convert(110, domain.CurrencyUSD, domain.CurrencySEK, ptr(day(5)))

	require.True(t, got.Converted)
	assert.InDelta(t, 1100.0, got.Amount, 1e-9)
	assert.Equal(t, domain.CurrencySEK, got.Currency)
}

func TestRateTable_SameDayLaterAdditionWins(t *testing.T) {
	table := NewRateTable()
	table.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(5), 1.10)
	table.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(5).Add(15*time.Hour), 1.11)
	table.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(6), -1)
	n := NewNormalizer(table)

	assert.Equal(t, 1, table.Len())
	got := n.Convert(100, domain.CurrencyEUR, domain.CurrencyUSD, ptr(day(5)))
	assert.InDelta(t, 111.0, got.Amount, 1e-9)
}

func TestNewRateTableFrom(t *testing.T) {
	table := NewRateTableFrom([]domain.ExchangeRate{
		{Base: domain.CurrencyEUR, Quote: domain.CurrencyGBP, Date: day(3), Rate: 0.85},
	})
	n := NewNormalizer(table)

	got := n.ToBase(85, domain.CurrencyGBP, ptr(day(4)))
	assert.InDelta(t, 100.0, got.Amount, 1e-9)
}
