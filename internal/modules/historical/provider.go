package historical

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/tradesim/internal/domain"
)

// PriceProvider supplies price series by ticker
type PriceProvider interface {
	GetPriceSeries(ticker string) (*PriceSeries, error)
	Tickers() []string
}

// MemoryProvider is an in-memory PriceProvider. Series are replaced whole,
// so readers always see a consistent series.
type MemoryProvider struct {
	mu     sync.RWMutex
	series map[string]*PriceSeries
}

// NewMemoryProvider creates an empty provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{series: make(map[string]*PriceSeries)}
}

// GetPriceSeries returns the ticker's series or ErrNoPriceSeries
func (p *MemoryProvider) GetPriceSeries(ticker string) (*PriceSeries, error) {
	ticker = domain.NormalizeTicker(ticker)

	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.series[ticker]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoPriceSeries, ticker)
	}
	return s, nil
}

// Tickers returns every ticker with a series, sorted
func (p *MemoryProvider) Tickers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tickers := make([]string, 0, len(p.series))
	for ticker := range p.series {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// Put replaces the series for its ticker
func (p *MemoryProvider) Put(s *PriceSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[s.Ticker()] = s
}

// Merge adds points to the ticker's series, creating it if needed
func (p *MemoryProvider) Merge(ticker string, points []PricePoint) (*PriceSeries, error) {
	ticker = domain.NormalizeTicker(ticker)

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		merged *PriceSeries
		err    error
	)
	if existing, ok := p.series[ticker]; ok {
		merged, err = existing.Merge(points)
	} else {
		merged, err = NewPriceSeries(ticker, points)
	}
	if err != nil {
		return nil, err
	}
	p.series[ticker] = merged
	return merged, nil
}

// Delete removes a ticker's series. Returns false if there was none.
func (p *MemoryProvider) Delete(ticker string) bool {
	ticker = domain.NormalizeTicker(ticker)

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.series[ticker]; !ok {
		return false
	}
	delete(p.series, ticker)
	return true
}
