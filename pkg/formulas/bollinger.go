package formulas

import (
	"github.com/markcheno/go-talib"
)

// BollingerBands is one Bollinger band triple
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// BollingerSeries returns bands aligned with closes (SMA middle band,
// stdDevMultiplier standard deviations wide). Entries before the first full window are nil.
func BollingerSeries(closes []float64, length int, stdDevMultiplier float64) []*BollingerBands {
	out := make([]*BollingerBands, len(closes))
	if length <= 1 || len(closes) < length {
		return out
	}

	// MAType 0 = SMA
	upper, middle, lower := talib.BBands(closes, length, stdDevMultiplier, stdDevMultiplier, 0)
	for i := length - 1; i < len(closes); i++ {
		if isNaN(upper[i]) || isNaN(lower[i]) {
			continue
		}
		out[i] = &BollingerBands{Upper: upper[i], Middle: middle[i], Lower: lower[i]}
	}
	return out
}

// CalculateBollingerBands returns the latest bands, or nil if insufficient data
func CalculateBollingerBands(closes []float64, length int, stdDevMultiplier float64) *BollingerBands {
	series := BollingerSeries(closes, length, stdDevMultiplier)
	if len(series) == 0 {
		return nil
	}
	return series[len(series)-1]
}
