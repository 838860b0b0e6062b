package charts

import (
	"context"
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/domain"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/currency"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	testutil "github.com/degiro-portfolio/degiro-portfolio/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func points(t *testing.T, series []ChartDataPoint) []float64 {
	t.Helper()
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

func testContext() *portfolio.DataContext {
	return &portfolio.DataContext{
		Today: date(2024, 1, 8),
		Stocks: []domain.Stock{
			{ID: 1, ISIN: "NL0010273215", Name: "ASML HOLDING", Currency: domain.CurrencyEUR, Ticker: "ASML.AS"},
			{ID: 2, ISIN: "DE0007164600", Name: "SAP SE", Currency: domain.CurrencyEUR},
		},
		Transactions: map[int64][]domain.Transaction{
			1: {{ID: 1, StockID: 1, ExecutedAt: date(2024, 1, 2), Quantity: 10, Price: 100, Currency: domain.CurrencyEUR}},
			2: {
				{ID: 2, StockID: 2, ExecutedAt: date(2024, 1, 2), Quantity: 1, Price: 150, Currency: domain.CurrencyEUR},
				{ID: 3, StockID: 2, ExecutedAt: date(2024, 1, 3), Quantity: -2, Price: 150, Currency: domain.CurrencyEUR},
			},
		},
		Prices: map[int64][]domain.PricePoint{
			1: {
				{Date: date(2024, 1, 2), Close: 100},
				{Date: date(2024, 1, 3), Close: 110},
				{Date: date(2024, 1, 5), Close: 125},
			},
			2: {{Date: date(2024, 1, 3), Close: 150}},
		},
		Indices: []portfolio.IndexSeries{{
			Index: domain.Index{ID: 1, Symbol: "^GSPC", Name: "S&P 500"},
			Closes: []domain.PricePoint{
				{Date: date(2024, 1, 1), Close: 4000},
				{Date: date(2024, 1, 2), Close: 4700},
				{Date: date(2024, 1, 3), Close: 4935},
			},
		}},
		Rates: currency.NewRateTable(),
	}
}

func TestBuildStockChart(t *testing.T) {
	chart, err := BuildStockChart(testContext(), 1, "all")
	require.NoError(t, err)

	assert.Empty(t, chart.Error)
	assert.Equal(t, "ASML HOLDING", chart.Stock.Name)
	assert.Len(t, chart.Prices, 3)
	assert.Len(t, chart.Transactions, 1)
	require.Len(t, chart.Tranches, 1)

	assert.InDeltaSlice(t, []float64{100, 110, 125}, points(t, chart.StockNormalized), 1e-9)
	assert.InDeltaSlice(t, []float64{100, 110, 125}, points(t, chart.PositionPercentage), 1e-9)
	assert.Equal(t, "2024-01-05", chart.PositionPercentage[2].Time)

	require.Len(t, chart.Indices, 1)
	assert.Equal(t, "^GSPC", chart.Indices[0].Symbol)
	assert.InDeltaSlice(t, []float64{100, 105}, points(t, chart.Indices[0].Points), 1e-9)
	assert.Equal(t, "2024-01-02", chart.Indices[0].Points[0].Time)

	assert.Empty(t, chart.SMA50)
	assert.Empty(t, chart.SMA200)
	assert.Empty(t, chart.EMA20)
	assert.Empty(t, chart.Bollinger)
	assert.Nil(t, chart.Indicators.SMA50)
	assert.Nil(t, chart.Indicators.Bollinger)
	// fewer closes than the window: the plain mean
	require.NotNil(t, chart.Indicators.EMA20)
	assert.InDelta(t, 335.0/3, *chart.Indicators.EMA20, 1e-9)
}

func TestBuildStockChart_OversoldStockKeepsPrices(t *testing.T) {
	chart, err := BuildStockChart(testContext(), 2, "")
	require.NoError(t, err)

	assert.Contains(t, chart.Error, "only 1 are held")
	assert.Len(t, chart.Prices, 1)
	assert.Empty(t, chart.Tranches)
	assert.Empty(t, chart.PositionPercentage)
}

func TestBuildStockChart_UnknownStock(t *testing.T) {
	_, err := BuildStockChart(testContext(), 42, "")
	assert.True(t, portfolio.IsNotFound(err))
}

func TestBuildStockChart_RangeAndMovingAverage(t *testing.T) {
	dc := testContext()
	var prices []domain.PricePoint
	first := date(2023, 10, 1)
	for i := 0; i < 60; i++ {
		prices = append(prices, domain.PricePoint{Date: first.AddDate(0, 0, i), Close: float64(i + 1)})
	}
	dc.Prices[1] = prices
	dc.Transactions[1][0].ExecutedAt = first
	dc.Today = date(2023, 11, 29)

	chart, err := BuildStockChart(dc, 1, "all")
	require.NoError(t, err)
	require.Len(t, chart.SMA50, 11)
	assert.InDelta(t, 25.5, chart.SMA50[0].Value, 1e-9)
	assert.Equal(t, "2023-11-19", chart.SMA50[0].Time)

	// closes rise by 1 a day, so EMA(20) trails the close by 9.5 from its seed on
	require.Len(t, chart.EMA20, 41)
	assert.Equal(t, "2023-10-20", chart.EMA20[0].Time)
	assert.InDelta(t, 10.5, chart.EMA20[0].Value, 1e-6)
	assert.InDelta(t, 50.5, chart.EMA20[40].Value, 1e-6)

	require.Len(t, chart.Bollinger, 41)
	last := chart.Bollinger[40]
	assert.Equal(t, "2023-11-29", last.Time)
	assert.InDelta(t, 50.5, last.Middle, 1e-6)
	assert.InDelta(t, last.Upper-last.Middle, last.Middle-last.Lower, 1e-6)
	assert.Greater(t, last.Upper, last.Middle)

	require.NotNil(t, chart.Indicators.SMA50)
	assert.InDelta(t, 35.5, *chart.Indicators.SMA50, 1e-9)
	assert.Nil(t, chart.Indicators.SMA200)
	require.NotNil(t, chart.Indicators.EMA20)
	assert.InDelta(t, 50.5, *chart.Indicators.EMA20, 1e-6)
	require.NotNil(t, chart.Indicators.Bollinger)
	assert.InDelta(t, last.Upper, chart.Indicators.Bollinger.Upper, 1e-9)

	chart, err = BuildStockChart(dc, 1, "1M")
	require.NoError(t, err)
	require.NotEmpty(t, chart.Prices)
	assert.Equal(t, date(2023, 10, 29), chart.Prices[0].Date)
	assert.Len(t, chart.SMA50, 11)
	assert.Equal(t, 100.0, chart.StockNormalized[0].Value)
	require.Len(t, chart.Indices[0].Points, 3)
	assert.Equal(t, 100.0, chart.Indices[0].Points[0].Value)
}

func TestAggregatePrices(t *testing.T) {
	prices := []domain.PricePoint{
		{Date: date(2024, 1, 1), Close: 10},
		{Date: date(2024, 1, 3), Close: 20},
		{Date: date(2024, 1, 8), Close: 30},
		{Date: date(2024, 2, 1), Close: 40},
	}

	weekly := aggregatePrices(prices, "week")
	require.Len(t, weekly, 3)
	assert.Equal(t, ChartDataPoint{Time: "2024-W01", Value: 15}, weekly[0])
	assert.Equal(t, "2024-W02", weekly[1].Time)

	monthly := aggregatePrices(prices, "month")
	require.Len(t, monthly, 2)
	assert.Equal(t, ChartDataPoint{Time: "2024-01", Value: 20}, monthly[0])
}

func TestParseDateRange(t *testing.T) {
	today := date(2024, 6, 30)
	assert.Equal(t, date(2024, 5, 30), parseDateRange("1M", today))
	assert.Equal(t, date(2023, 6, 30), parseDateRange("1Y", today))
	assert.True(t, parseDateRange("all", today).IsZero())
	assert.True(t, parseDateRange("bogus", today).IsZero())
}

func TestSparklines(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	log := zerolog.Nop()

	stocks := portfolio.NewStockRepository(db.Conn(), log)
	id, err := stocks.Upsert(ctx, domain.Stock{ISIN: "US0378331005", Name: "APPLE INC", Currency: domain.CurrencyUSD})
	require.NoError(t, err)
	require.NoError(t, stocks.SetTicker(ctx, id, "AAPL"))

	closed, err := stocks.Upsert(ctx, domain.Stock{ISIN: "US88160R1014", Name: "TESLA INC", Currency: domain.CurrencyUSD})
	require.NoError(t, err)

	txs := portfolio.NewTransactionRepository(db.Conn(), log)
	now := time.Now().UTC()
	for _, tx := range []domain.Transaction{
		{StockID: id, ExecutedAt: now.AddDate(0, -2, 0), Quantity: 2, Price: 180, Currency: domain.CurrencyUSD},
		{StockID: closed, ExecutedAt: now.AddDate(0, -2, 0), Quantity: 1, Price: 200, Currency: domain.CurrencyUSD},
		{StockID: closed, ExecutedAt: now.AddDate(0, -1, 0), Quantity: -1, Price: 210, Currency: domain.CurrencyUSD},
	} {
		_, err := txs.Insert(ctx, tx)
		require.NoError(t, err)
	}

	prices := marketdata.NewPriceRepository(db.Conn(), log)
	_, err = prices.InsertBars(ctx, id, domain.CurrencyUSD, []domain.PricePoint{
		{Date: domain.Day(now.AddDate(0, 0, -3)), Close: 190},
		{Date: domain.Day(now.AddDate(-2, 0, 0)), Close: 120},
	})
	require.NoError(t, err)

	service := NewService(portfolio.NewLoader(db, log), log)
	lines, err := service.Sparklines(ctx, "1Y")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Len(t, lines["AAPL"], 1)
	assert.Equal(t, 190.0, lines["AAPL"][0].Value)

	_, err = service.Sparklines(ctx, "2W")
	assert.Error(t, err)

	_, err = service.StockChart(ctx, 999, "all")
	assert.True(t, portfolio.IsNotFound(err))
}
