package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMASeries(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	sma := SMASeries(closes, 3)

	require.Len(t, sma, 5)
	assert.Nil(t, sma[0])
	assert.Nil(t, sma[1])
	require.NotNil(t, sma[2])
	assert.InDelta(t, 2.0, *sma[2], 1e-9)
	assert.InDelta(t, 4.0, *sma[4], 1e-9)

	assert.InDelta(t, 4.0, *CalculateSMA(closes, 3), 1e-9)
	assert.Nil(t, CalculateSMA(closes, 10))
	assert.Len(t, SMASeries(closes, 10), 5)
}

func TestEMASeries(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10}
	ema := EMASeries(closes, 3)
	assert.Nil(t, ema[1])
	require.NotNil(t, ema[5])
	assert.InDelta(t, 10.0, *ema[5], 1e-9)

	short := CalculateEMA([]float64{1, 2, 3}, 50)
	require.NotNil(t, short)
	assert.InDelta(t, 2.0, *short, 1e-9)
	assert.Nil(t, CalculateEMA(nil, 5))
}

func TestBollingerSeries_FlatPricesCollapse(t *testing.T) {
	closes := []float64{5, 5, 5, 5, 5}
	bands := BollingerSeries(closes, 3, 2)

	assert.Nil(t, bands[1])
	require.NotNil(t, bands[4])
	assert.InDelta(t, 5.0, bands[4].Upper, 1e-9)
	assert.InDelta(t, 5.0, bands[4].Lower, 1e-9)
	assert.NotNil(t, CalculateBollingerBands(closes, 3, 2))
}

func TestReturnsAndVolatility(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Empty(t, CalculateReturns([]float64{100}))
	assert.Equal(t, 0.0, AnnualizedVolatility([]float64{0.01}))

	vol := AnnualizedVolatility(returns)
	assert.InDelta(t, StdDev(returns)*math.Sqrt(252), vol, 1e-12)
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.0, Correlation(x, []float64{2, 4, 6, 8}), 1e-9)
	assert.InDelta(t, -1.0, Correlation(x, []float64{8, 6, 4, 2}), 1e-9)
	assert.Equal(t, 0.0, Correlation(x, []float64{1, 2}))
	assert.Equal(t, 0.0, Correlation(x, []float64{3, 3, 3, 3}))
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, -0.5, MaxDrawdown([]float64{100, 120, 60, 90}), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1, 2, 3}))
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float64{0, 50, 75, 100}, 100)
	assert.Nil(t, got[0])
	assert.InDelta(t, 100.0, *got[1], 1e-9)
	assert.InDelta(t, 150.0, *got[2], 1e-9)
	assert.InDelta(t, 200.0, *got[3], 1e-9)
}

func TestCalculateCAGR(t *testing.T) {
	two := CalculateCAGR(100, 121, 730)
	require.NotNil(t, two)
	assert.InDelta(t, 0.1, *two, 0.001)

	short := CalculateCAGR(100, 105, 30)
	require.NotNil(t, short)
	assert.InDelta(t, 0.05, *short, 1e-9)

	assert.Nil(t, CalculateCAGR(0, 100, 365))
}
