// Package formulas provides the technical and statistical calculations used by the charts.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

func isNaN(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// SMASeries returns the simple moving average aligned with closes.
// Entries before the first full window are nil.
func SMASeries(closes []float64, length int) []*float64 {
	out := make([]*float64, len(closes))
	if length <= 0 || len(closes) < length {
		return out
	}
	return mask(talib.Sma(closes, length), length-1)
}

// EMASeries returns the exponential moving average aligned with closes.
// Entries before the first full window are nil.
func EMASeries(closes []float64, length int) []*float64 {
	out := make([]*float64, len(closes))
	if length <= 0 || len(closes) < length {
		return out
	}
	return mask(talib.Ema(closes, length), length-1)
}

// CalculateSMA returns the latest simple moving average, or nil if insufficient data
func CalculateSMA(closes []float64, length int) *float64 {
	series := SMASeries(closes, length)
	if len(series) == 0 {
		return nil
	}
	return series[len(series)-1]
}

// CalculateEMA returns the latest exponential moving average. With fewer closes
// than length the plain mean is returned.
func CalculateEMA(closes []float64, length int) *float64 {
	if len(closes) == 0 {
		return nil
	}
	if len(closes) < length {
		m := Mean(closes)
		return &m
	}
	series := EMASeries(closes, length)
	return series[len(series)-1]
}

// mask converts a talib output to pointers, dropping the lookback period
func mask(values []float64, lookback int) []*float64 {
	out := make([]*float64, len(values))
	for i := lookback; i < len(values); i++ {
		if isNaN(values[i]) {
			continue
		}
		v := values[i]
		out[i] = &v
	}
	return out
}
