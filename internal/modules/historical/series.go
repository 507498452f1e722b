// Package historical holds daily closing prices per ticker.
package historical

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoPriceSeries is returned when a provider has no series for a ticker
	ErrNoPriceSeries = errors.New("no price series")
	// ErrInvalidPriceSeries is returned for an empty ticker or a negative close
	ErrInvalidPriceSeries = errors.New("invalid price series")
)

// PricePoint is one trading period's closing price
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}

// PriceSeries is an immutable, date-ordered close series for one ticker.
// A date appears at most once.
type PriceSeries struct {
	ticker string
	points []PricePoint
}

// NewPriceSeries sorts points by date. When a date repeats, the later point
// in the input wins.
func NewPriceSeries(ticker string, points []PricePoint) (*PriceSeries, error) {
	ticker = domain.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker cannot be empty", ErrInvalidPriceSeries)
	}

	byDate := make(map[time.Time]int, len(points))
	sorted := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if p.Close.IsNegative() {
			return nil, fmt.Errorf("%w: negative close %s for %s on %s",
				ErrInvalidPriceSeries, p.Close, ticker, p.Date.Format("2006-01-02"))
		}
		key := p.Date.UTC()
		if i, ok := byDate[key]; ok {
			sorted[i] = p
			continue
		}
		byDate[key] = len(sorted)
		sorted = append(sorted, p)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return &PriceSeries{ticker: ticker, points: sorted}, nil
}

// Ticker returns the series' ticker
func (s *PriceSeries) Ticker() string {
	return s.ticker
}

// Len returns the number of points
func (s *PriceSeries) Len() int {
	return len(s.points)
}

// Points returns a copy of every point in date order
func (s *PriceSeries) Points() []PricePoint {
	out := make([]PricePoint, len(s.points))
	copy(out, s.points)
	return out
}

// Close returns the close of the latest point on or before date. The second
// result is false when date precedes the whole series.
func (s *PriceSeries) Close(date time.Time) (decimal.Decimal, bool) {
	i := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Date.After(date)
	})
	if i == 0 {
		return decimal.Zero, false
	}
	return s.points[i-1].Close, true
}

// Closes returns the points dated within [from, to]
func (s *PriceSeries) Closes(from, to time.Time) []PricePoint {
	start := sort.Search(len(s.points), func(i int) bool {
		return !s.points[i].Date.Before(from)
	})
	end := sort.Search(len(s.points), func(i int) bool {
		return s.points[i].Date.After(to)
	})
	if start >= end {
		return []PricePoint{}
	}
	out := make([]PricePoint, end-start)
	copy(out, s.points[start:end])
	return out
}

// Merge returns a new series with points added. Points on existing dates
// replace the old close.
func (s *PriceSeries) Merge(points []PricePoint) (*PriceSeries, error) {
	all := make([]PricePoint, 0, len(s.points)+len(points))
	all = append(all, s.points...)
	all = append(all, points...)
	return NewPriceSeries(s.ticker, all)
}

// Floats converts closes to float64 for numeric routines
func Floats(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close.InexactFloat64()
	}
	return out
}
