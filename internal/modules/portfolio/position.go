// Package portfolio provides security baskets (positions and portfolios), FIFO
// holding matching and the profitability calculations built on top of them.
package portfolio

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientShares is returned when a closing transaction would take held shares below zero
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrTickerMismatch is returned when a transaction is added to another ticker's position
	ErrTickerMismatch = errors.New("ticker mismatch")
)

// Position is the basket of share transactions for a single ticker.
//
// Writers are serialized by mu and replace the transaction slice with a new
// copy, so a snapshot taken by a reader is never modified afterwards.
type Position struct {
	ticker string
	mu     sync.RWMutex
	txs    []domain.Transaction
}

// NewPosition creates an empty position
func NewPosition(ticker string) (*Position, error) {
	ticker = domain.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker cannot be empty", domain.ErrInvalidTransaction)
	}
	return &Position{ticker: ticker, txs: []domain.Transaction{}}, nil
}

// Ticker returns the position's ticker
func (p *Position) Ticker() string {
	return p.ticker
}

// AddTransaction inserts a share transaction in settlement order.
// The position is left unchanged if the result would hold negative shares at
// any settlement date.
func (p *Position) AddTransaction(tx domain.Transaction) error {
	if !tx.OrderType.IsShare() {
		return fmt.Errorf("%w: %s is not a share transaction", domain.ErrInvalidTransaction, tx.OrderType)
	}
	if tx.Ticker != p.ticker {
		return fmt.Errorf("%w: position %s cannot hold %s", ErrTickerMismatch, p.ticker, tx.Ticker)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := len(p.txs)
	for i, existing := range p.txs {
		if existing.SettlementDate.After(tx.SettlementDate) {
			idx = i
			break
		}
	}

	next := make([]domain.Transaction, 0, len(p.txs)+1)
	next = append(next, p.txs[:idx]...)
	next = append(next, tx)
	next = append(next, p.txs[idx:]...)

	if err := validateLedger(next); err != nil {
		return err
	}

	p.txs = next
	return nil
}

// validateLedger replays the transactions and rejects any point where long or
// short shares go negative.
func validateLedger(txs []domain.Transaction) error {
	long := decimal.Zero
	short := decimal.Zero

	for _, tx := range txs {
		switch tx.OrderType {
		case domain.OrderTypeBuy, domain.OrderTypeDividendReinvestment:
			long = long.Add(tx.Shares)
		case domain.OrderTypeSell:
			long = long.Sub(tx.Shares)
			if long.IsNegative() {
				return fmt.Errorf("%w: selling %s %s on %s leaves %s held",
					ErrInsufficientShares, tx.Shares, tx.Ticker, tx.SettlementDate.Format("2006-01-02"), long)
			}
		case domain.OrderTypeSellShort:
			short = short.Add(tx.Shares)
		case domain.OrderTypeBuyToCover:
			short = short.Sub(tx.Shares)
			if short.IsNegative() {
				return fmt.Errorf("%w: covering %s %s on %s leaves %s short",
					ErrInsufficientShares, tx.Shares, tx.Ticker, tx.SettlementDate.Format("2006-01-02"), short)
			}
		}
	}
	return nil
}

// Transactions returns a copy of the position's transactions in settlement order
func (p *Position) Transactions() []domain.Transaction {
	return slices.Clone(p.snapshot())
}

// snapshot returns the current transaction slice. Callers must not modify it.
func (p *Position) snapshot() []domain.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.txs
}

// IsEmpty returns true if no transaction was ever recorded
func (p *Position) IsEmpty() bool {
	return len(p.snapshot()) == 0
}

// Head returns the earliest settlement date, zero for an empty position
func (p *Position) Head() time.Time {
	txs := p.snapshot()
	if len(txs) == 0 {
		return time.Time{}
	}
	return txs[0].SettlementDate
}

// Tail returns the latest settlement date, zero for an empty position
func (p *Position) Tail() time.Time {
	txs := p.snapshot()
	if len(txs) == 0 {
		return time.Time{}
	}
	return txs[len(txs)-1].SettlementDate
}

// LongShares returns the shares held long as of date
func (p *Position) LongShares(date time.Time) decimal.Decimal {
	long, _ := p.balances(date)
	return long
}

// ShortShares returns the shares held short as of date
func (p *Position) ShortShares(date time.Time) decimal.Decimal {
	_, short := p.balances(date)
	return short
}

// Shares returns long minus short shares as of date
func (p *Position) Shares(date time.Time) decimal.Decimal {
	long, short := p.balances(date)
	return long.Sub(short)
}

func (p *Position) balances(date time.Time) (decimal.Decimal, decimal.Decimal) {
	long := decimal.Zero
	short := decimal.Zero
	for _, tx := range p.snapshot() {
		if tx.SettlementDate.After(date) {
			break
		}
		switch tx.OrderType {
		case domain.OrderTypeBuy, domain.OrderTypeDividendReinvestment:
			long = long.Add(tx.Shares)
		case domain.OrderTypeSell:
			long = long.Sub(tx.Shares)
		case domain.OrderTypeSellShort:
			short = short.Add(tx.Shares)
		case domain.OrderTypeBuyToCover:
			short = short.Sub(tx.Shares)
		}
	}
	return long, short
}

// Holdings returns the closed holdings as of date
func (p *Position) Holdings(date time.Time) []Holding {
	holdings, _ := matchLots(p.snapshot(), date)
	return holdings
}

// OpenLots returns the lots still open as of date
func (p *Position) OpenLots(date time.Time) []Lot {
	_, open := matchLots(p.snapshot(), date)
	return open
}
