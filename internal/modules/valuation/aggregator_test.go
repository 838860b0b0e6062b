package valuation

import (
	"errors"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/positions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func build(t *testing.T, stockID int64, cur domain.Currency, qty float64, firstDay int, closes ...float64) *positions.Series {
	t.Helper()
	prices := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		prices[i] = domain.PricePoint{Date: day(firstDay + i), Close: c}
	}
	s, err := positions.Build(positions.Input{
		StockID:  stockID,
		Currency: cur,
		Transactions: []domain.Transaction{
			{ID: stockID, StockID: stockID, ExecutedAt: day(firstDay), Quantity: qty, Price: closes[0], Currency: cur},
		},
		Prices: prices,
	})
	require.NoError(t, err)
	return s
}

func eurOnly() *currency.Normalizer {
	return currency.NewNormalizer(currency.NewRateTable())
}

func TestAggregate_CarriesShorterSeriesForward(t *testing.T) {
	a := build(t, 1, domain.CurrencyEUR, 1, 1, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19)
	b := build(t, 2, domain.CurrencyEUR, 2, 1, 5, 5, 5, 5, 5, 5, 5, 6)

	tl := Aggregate([]*positions.Series{a, b}, eurOnly(), day(10))

	require.Len(t, tl.Points, 10)
	assert.Equal(t, day(10), *tl.LastPricedDate)

	for i, p := range tl.Points {
		assert.Equal(t, day(i+1), p.Date)
		assert.Equal(t, p.Date.After(day(8)), p.IsExtrapolated, p.Date.Format(domain.DateFormat))
	}
	// Day 10: a closes at 19, b carried from day 8 at 6
	assert.InDelta(t, 19.0+12.0, tl.Points[9].TotalValueEUR, 1e-9)
	assert.InDelta(t, 10.0+10.0, tl.Points[9].InvestedEUR, 1e-9)
}

func TestAggregate_ExtendsToToday(t *testing.T) {
	a := build(t, 1, domain.CurrencyEUR, 1, 1, 10, 11, 12)

	tl := Aggregate([]*positions.Series{a}, eurOnly(), day(20).Add(9*time.Hour))

	require.Len(t, tl.Points, 4)
	last := tl.Points[3]
	assert.Equal(t, day(20), last.Date)
	assert.True(t, last.IsExtrapolated)
	assert.Equal(t, 12.0, last.TotalValueEUR)
	assert.Equal(t, day(3), *tl.LastPricedDate)
	assert.False(t, tl.Points[2].IsExtrapolated)
}

func TestAggregate_DatesStrictlyIncreasingAndEndToday(t *testing.T) {
	a := build(t, 1, domain.CurrencyEUR, 1, 2, 10, 11, 12, 13)
	b := build(t, 2, domain.CurrencyEUR, 1, 1, 20, 21, 22)
	c := build(t, 3, domain.CurrencyEUR, 1, 4, 30, 31, 32, 33, 34, 35, 36, 37, 38, 39, 40, 41, 42)

	today := day(12)
	tl := Aggregate([]*positions.Series{a, b, c}, eurOnly(), today)

	for i := 1; i < len(tl.Points); i++ {
		assert.True(t, tl.Points[i].Date.After(tl.Points[i-1].Date))
	}
	assert.Equal(t, today, tl.Points[len(tl.Points)-1].Date)
	// Prices after today are ignored
	assert.Equal(t, today, *tl.LastPricedDate)
}

func TestAggregate_StockNotYetPurchasedContributesZero(t *testing.T) {
	a := build(t, 1, domain.CurrencyEUR, 1, 1, 10, 10, 10)
	b := build(t, 2, domain.CurrencyEUR, 1, 3, 50)

	tl := Aggregate([]*positions.Series{a, b}, eurOnly(), day(3))

	require.Len(t, tl.Points, 3)
	assert.Equal(t, 10.0, tl.Points[0].TotalValueEUR)
	assert.Equal(t, 60.0, tl.Points[2].TotalValueEUR)
}

func TestAggregate_ConvertsToEUR(t *testing.T) {
	rates := currency.NewRateTable()
	rates.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(1), 2.0)
	rates.Add(domain.CurrencyEUR, domain.CurrencyUSD, day(2), 4.0)

	a := build(t, 1, domain.CurrencyUSD, 1, 1, 100, 100)

	tl := Aggregate([]*positions.Series{a}, currency.NewNormalizer(rates), day(2))

	require.Len(t, tl.Points, 2)
	assert.InDelta(t, 50.0, tl.Points[0].TotalValueEUR, 1e-9)
	assert.InDelta(t, 25.0, tl.Points[1].TotalValueEUR, 1e-9)
	assert.Empty(t, tl.Warnings)
}

func TestAggregate_MissingRateIsSoft(t *testing.T) {
	eur := build(t, 1, domain.CurrencyEUR, 1, 1, 10, 10)
	sek := build(t, 2, domain.CurrencySEK, 1, 1, 100, 100)

	tl := Aggregate([]*positions.Series{eur, sek}, eurOnly(), day(2))

	require.Len(t, tl.Points, 2)
	assert.Equal(t, 10.0, tl.Points[1].TotalValueEUR)
	require.Len(t, tl.Warnings, 1)
	var missing *domain.MissingRateError
	assert.True(t, errors.As(tl.Warnings[0], &missing))
	assert.Equal(t, domain.CurrencySEK, missing.From)
	require.NotNil(t, missing.AsOf)
	assert.Equal(t, day(1), *missing.AsOf)
}

func TestAggregate_EmptySeriesContributesZero(t *testing.T) {
	a := build(t, 1, domain.CurrencyEUR, 1, 1, 10, 10)
	empty, err := positions.Build(positions.Input{
		StockID:      2,
		Currency:     domain.CurrencyEUR,
		Transactions: []domain.Transaction{{ID: 9, StockID: 2, ExecutedAt: day(1), Quantity: 3, Price: 1}},
	})
	require.NoError(t, err)

	tl := Aggregate([]*positions.Series{a, empty}, eurOnly(), day(2))

	require.Len(t, tl.Points, 2)
	assert.Equal(t, 10.0, tl.Points[1].TotalValueEUR)
	require.Len(t, tl.Warnings, 1)
	var emptyErr *domain.EmptySeriesError
	assert.True(t, errors.As(tl.Warnings[0], &emptyErr))
}

func TestAggregate_NoData(t *testing.T) {
	tl := Aggregate(nil, eurOnly(), day(5))

	assert.Empty(t, tl.Points)
	assert.Nil(t, tl.LastPricedDate)
}
