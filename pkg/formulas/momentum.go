// Package formulas holds the numeric helpers used on price series.
package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateMomentum returns closes[last] - closes[first] over the whole slice.
//
// Momentum Formula:
//
//	MOM = Close_today - Close_n_periods_ago
//
// with n = len(closes)-1, so the window spans every close given.
// Returns nil with fewer than two closes.
func CalculateMomentum(closes []float64) *float64 {
	return CalculateMomentumPeriod(closes, len(closes)-1)
}

// CalculateMomentumPeriod returns the latest n-period momentum, or nil if
// there is not enough data
func CalculateMomentumPeriod(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period+1 {
		return nil
	}

	mom := talib.Mom(closes, period)

	if len(mom) > 0 && !isNaN(mom[len(mom)-1]) {
		result := mom[len(mom)-1]
		return &result
	}
	return nil
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
