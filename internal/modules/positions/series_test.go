package positions

import (
	"errors"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func tx(id int64, d int, qty, price float64) domain.Transaction {
	return domain.Transaction{ID: id, StockID: 1, ExecutedAt: day(d).Add(14 * time.Hour), Quantity: qty, Price: price, Currency: domain.CurrencyUSD}
}

func pricesFrom(first int, closes ...float64) []domain.PricePoint {
	out := make([]domain.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = domain.PricePoint{Date: day(first + i), Close: c}
	}
	return out
}

func TestBuild_Scenario(t *testing.T) {
	series, err := Build(Input{
		StockID:      1,
		Currency:     domain.CurrencyUSD,
		Transactions: []domain.Transaction{tx(1, 1, 10, 100), tx(2, 5, -4, 120)},
		Prices:       pricesFrom(1, 100, 105, 110, 115, 120, 125),
	})
	require.NoError(t, err)
	require.Len(t, series.Snapshots, 6)
	assert.Empty(t, series.Soft)

	first := series.Snapshots[0]
	assert.Equal(t, 10.0, first.Quantity)
	assert.Equal(t, 1000.0, first.CostBasis)
	assert.InDelta(t, 100.0, *first.ValuePct, 1e-9)

	last := series.Snapshots[5]
	assert.Equal(t, day(6), last.Date)
	assert.Equal(t, 6.0, last.Quantity)
	assert.Equal(t, 600.0, last.CostBasis)
	assert.Equal(t, 750.0, last.MarketValue)
	assert.InDelta(t, 125.0, *last.ValuePct, 1e-9)

	require.Len(t, series.Tranches, 1)
	assert.Equal(t, 6.0, series.Tranches[0].RemainingQuantity)
}

func TestBuild_NoSnapshotBeforeFirstTransaction(t *testing.T) {
	series, err := Build(Input{
		StockID:      1,
		Transactions: []domain.Transaction{tx(1, 3, 2, 50)},
		Prices:       pricesFrom(1, 48, 49, 50, 51),
	})
	require.NoError(t, err)

	require.Len(t, series.Snapshots, 2)
	assert.Equal(t, day(3), series.Snapshots[0].Date)
}

func TestBuild_ClosedPositionEmitsZeroValueSnapshots(t *testing.T) {
	series, err := Build(Input{
		StockID:      1,
		Transactions: []domain.Transaction{tx(1, 1, 2, 50), tx(2, 2, -2, 60)},
		Prices:       pricesFrom(1, 50, 60, 70, 80),
	})
	require.NoError(t, err)

	require.Len(t, series.Snapshots, 4)
	for _, s := range series.Snapshots[1:] {
		assert.Equal(t, 0.0, s.Quantity)
		assert.Equal(t, 0.0, s.MarketValue)
		assert.Nil(t, s.ValuePct)
	}
}

func TestBuild_QuantityMatchesSignedSum(t *testing.T) {
	txs := []domain.Transaction{
		tx(1, 1, 5, 10),
		tx(2, 3, 3, 11),
		tx(3, 4, -6, 12),
		tx(4, 7, 1, 13),
		tx(5, 9, -3, 12),
	}
	series, err := Build(Input{StockID: 1, Transactions: txs, Prices: pricesFrom(1, 10, 10, 11, 12, 12, 12, 13, 13, 12, 12)})
	require.NoError(t, err)

	for _, s := range series.Snapshots {
		expected := 0.0
		for _, x := range txs {
			if !domain.Day(x.ExecutedAt).After(s.Date) {
				expected += x.Quantity
			}
		}
		assert.InDelta(t, expected, s.Quantity, 1e-9, s.Date.Format(domain.DateFormat))
	}
}

func TestBuild_DatesStrictlyIncreasing(t *testing.T) {
	prices := []domain.PricePoint{
		{Date: day(3), Close: 12},
		{Date: day(1), Close: 10},
		{Date: day(2), Close: 11},
		{Date: day(2).Add(5 * time.Hour), Close: 11.5},
	}
	series, err := Build(Input{StockID: 1, Transactions: []domain.Transaction{tx(1, 1, 1, 10)}, Prices: prices})
	require.NoError(t, err)

	require.Len(t, series.Snapshots, 3)
	for i := 1; i < len(series.Snapshots); i++ {
		assert.True(t, series.Snapshots[i].Date.After(series.Snapshots[i-1].Date))
	}
	assert.Equal(t, 11.5, series.Snapshots[1].Close)
}

func TestBuild_OversellAborts(t *testing.T) {
	series, err := Build(Input{
		StockID:      4,
		Transactions: []domain.Transaction{tx(1, 1, 3, 10), tx(2, 2, -5, 10)},
		Prices:       pricesFrom(1, 10, 10, 10),
	})

	assert.Nil(t, series)
	var insufficient *domain.InsufficientHoldingsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(4), insufficient.StockID)
}

func TestBuild_OversellAfterLastPriceStillAborts(t *testing.T) {
	_, err := Build(Input{
		StockID:      4,
		Transactions: []domain.Transaction{tx(1, 1, 3, 10), tx(2, 9, -5, 10)},
		Prices:       pricesFrom(1, 10, 10),
	})
	assert.Error(t, err)
}

func TestBuild_NoPricesIsSoftEmptySeries(t *testing.T) {
	series, err := Build(Input{StockID: 8, Transactions: []domain.Transaction{tx(1, 1, 3, 10)}})
	require.NoError(t, err)

	assert.True(t, series.IsEmpty())
	require.Len(t, series.Soft, 1)
	var empty *domain.EmptySeriesError
	assert.True(t, errors.As(series.Soft[0], &empty))
}

func TestSnapshotAt_CarriesForward(t *testing.T) {
	series, err := Build(Input{
		StockID:      1,
		Transactions: []domain.Transaction{tx(1, 1, 1, 10)},
		Prices:       []domain.PricePoint{{Date: day(1), Close: 10}, {Date: day(4), Close: 14}},
	})
	require.NoError(t, err)

	s, ok := series.SnapshotAt(day(3))
	require.True(t, ok)
	assert.Equal(t, day(1), s.Date)

	s, ok = series.SnapshotAt(day(9))
	require.True(t, ok)
	assert.Equal(t, 14.0, s.Close)

	_, ok = series.SnapshotAt(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	last, ok := series.LastDate()
	require.True(t, ok)
	assert.Equal(t, day(4), last)
}
