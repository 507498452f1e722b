// Package analysis decides which orders to issue from daily price momentum.
package analysis

import (
	"fmt"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/aristath/tradesim/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Analyzer sizes orders from the momentum of a price series
type Analyzer struct {
	orderLifetime time.Duration
	log           zerolog.Logger
}

// NewAnalyzer creates an analyzer whose orders expire orderLifetime after issue
func NewAnalyzer(orderLifetime time.Duration, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		orderLifetime: orderLifetime,
		log:           log.With().Str("service", "analyzer").Logger(),
	}
}

// DetermineOrdersFor returns the unsubmitted orders for one ticker.
//
// Momentum is measured over the closes dated within [start, end]:
//   - rising: buy one share at the close of end, if available cash covers it
//   - falling: sell the long shares held, net of shares already in open Sell
//     orders for the ticker
//   - flat, or fewer than two closes: nothing
//
// Orders are issued at end.
func (a *Analyzer) DetermineOrdersFor(
	p *portfolio.Portfolio,
	series *historical.PriceSeries,
	start, end time.Time,
	openOrders []*domain.Order,
) ([]*domain.Order, error) {
	ticker := series.Ticker()

	momentum := a.Momentum(series, start, end)
	if momentum == nil {
		a.log.Debug().Str("ticker", ticker).Msg("Not enough closes for momentum")
		return nil, nil
	}

	price, ok := series.Close(end)
	if !ok {
		return nil, nil
	}

	switch {
	case *momentum > 0:
		return a.buy(p, ticker, price, end)
	case *momentum < 0:
		return a.sell(p, ticker, price, end, openOrders)
	default:
		return nil, nil
	}
}

// Momentum returns the change from the first to the last close in
// [start, end], or nil with fewer than two closes
func (a *Analyzer) Momentum(series *historical.PriceSeries, start, end time.Time) *float64 {
	return formulas.CalculateMomentum(historical.Floats(series.Closes(start, end)))
}

func (a *Analyzer) buy(p *portfolio.Portfolio, ticker string, price decimal.Decimal, end time.Time) ([]*domain.Order, error) {
	cash := p.GetAvailableCash(end)
	if cash.LessThan(price) {
		a.log.Debug().
			Str("ticker", ticker).
			Str("cash", cash.String()).
			Str("price", price.String()).
			Msg("Insufficient cash for buy")
		return nil, nil
	}

	order, err := domain.NewOrder(end, end.Add(a.orderLifetime), domain.OrderTypeBuy, ticker, decimal.NewFromInt(1), price)
	if err != nil {
		return nil, fmt.Errorf("failed to build buy order for %s: %w", ticker, err)
	}
	return []*domain.Order{order}, nil
}

func (a *Analyzer) sell(p *portfolio.Portfolio, ticker string, price decimal.Decimal, end time.Time, openOrders []*domain.Order) ([]*domain.Order, error) {
	pos := p.GetPosition(ticker)
	if pos == nil {
		return nil, nil
	}
	held := pos.LongShares(end)
	if !held.IsPositive() {
		return nil, nil
	}

	pending := OpenSellShares(openOrders, ticker)
	shares := held.Sub(pending)
	if !shares.IsPositive() {
		a.log.Debug().
			Str("ticker", ticker).
			Str("held", held.String()).
			Str("pending", pending.String()).
			Msg("Open sell orders already cover the position")
		return nil, nil
	}

	order, err := domain.NewOrder(end, end.Add(a.orderLifetime), domain.OrderTypeSell, ticker, shares, price)
	if err != nil {
		return nil, fmt.Errorf("failed to build sell order for %s: %w", ticker, err)
	}
	return []*domain.Order{order}, nil
}

// OpenSellShares sums the shares of open Sell orders for ticker
func OpenSellShares(openOrders []*domain.Order, ticker string) decimal.Decimal {
	ticker = domain.NormalizeTicker(ticker)
	total := decimal.Zero
	for _, order := range openOrders {
		if order != nil && order.OrderType == domain.OrderTypeSell && order.Ticker == ticker {
			total = total.Add(order.Shares)
		}
	}
	return total
}
