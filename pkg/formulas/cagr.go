package formulas

import "math"

// CalculateCAGR returns the compound annual growth rate between two values held
// for days calendar days. Periods under three months return the simple return.
// Returns nil when either value is not positive.
func CalculateCAGR(start, end float64, days int) *float64 {
	if start <= 0 || end <= 0 || days <= 0 {
		return nil
	}

	years := float64(days) / 365.25
	if years < 0.25 {
		result := end/start - 1
		return &result
	}

	cagr := math.Pow(end/start, 1/years) - 1
	return &cagr
}
