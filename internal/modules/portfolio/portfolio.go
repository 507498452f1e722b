package portfolio

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
)

// Portfolio aggregates every position plus the cash ledger
type Portfolio struct {
	clock     clock.Clock
	mu        sync.RWMutex
	positions map[string]*Position
	cash      []domain.Transaction
}

// NewPortfolio creates an empty portfolio. The clock supplies Head and Tail
// while no transaction has been recorded.
func NewPortfolio(c clock.Clock) *Portfolio {
	if c == nil {
		c = clock.Real{}
	}
	return &Portfolio{
		clock:     c,
		positions: make(map[string]*Position),
		cash:      []domain.Transaction{},
	}
}

// AddTransaction records a transaction. Share transactions go to their
// ticker's position, which is created on first use.
func (p *Portfolio) AddTransaction(tx domain.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx.OrderType.IsCash() {
		next := make([]domain.Transaction, 0, len(p.cash)+1)
		next = append(next, p.cash...)
		next = append(next, tx)
		sortTransactions(next)
		p.cash = next
		return nil
	}

	if !tx.OrderType.IsShare() {
		return fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidTransaction, tx.OrderType)
	}

	pos, ok := p.positions[tx.Ticker]
	if !ok {
		created, err := NewPosition(tx.Ticker)
		if err != nil {
			return err
		}
		pos = created
	}

	if err := pos.AddTransaction(tx); err != nil {
		return err
	}
	p.positions[tx.Ticker] = pos
	return nil
}

// AddTransactions records several transactions, stopping at the first error
func (p *Portfolio) AddTransactions(txs ...domain.Transaction) error {
	for _, tx := range txs {
		if err := p.AddTransaction(tx); err != nil {
			return err
		}
	}
	return nil
}

// GetPosition returns the ticker's position, or nil if none exists
func (p *Portfolio) GetPosition(ticker string) *Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[domain.NormalizeTicker(ticker)]
}

// Positions returns every position sorted by ticker
func (p *Portfolio) Positions() []*Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]*Position, 0, len(p.positions))
	for _, pos := range p.positions {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Ticker() < positions[j].Ticker()
	})
	return positions
}

// Transactions returns every cash and share transaction in settlement order
func (p *Portfolio) Transactions() []domain.Transaction {
	p.mu.RLock()
	all := make([]domain.Transaction, 0, len(p.cash))
	all = append(all, p.cash...)
	p.mu.RUnlock()

	for _, pos := range p.Positions() {
		all = append(all, pos.snapshot()...)
	}
	sortTransactions(all)
	return all
}

// Head returns the earliest transaction date, or now when empty
func (p *Portfolio) Head() time.Time {
	txs := p.Transactions()
	if len(txs) == 0 {
		return p.clock.Now()
	}
	return txs[0].SettlementDate
}

// Tail returns the latest transaction date, or now when empty
func (p *Portfolio) Tail() time.Time {
	txs := p.Transactions()
	if len(txs) == 0 {
		return p.clock.Now()
	}
	return txs[len(txs)-1].SettlementDate
}

// Holdings returns every position's holdings as of date, ordered by open
// date then close date
func (p *Portfolio) Holdings(date time.Time) []Holding {
	holdings := make([]Holding, 0)
	for _, pos := range p.Positions() {
		holdings = append(holdings, pos.Holdings(date)...)
	}
	sortHoldings(holdings)
	return holdings
}

// OpenLots returns every position's open lots as of date
func (p *Portfolio) OpenLots(date time.Time) []Lot {
	lots := make([]Lot, 0)
	for _, pos := range p.Positions() {
		lots = append(lots, pos.OpenLots(date)...)
	}
	return lots
}

// GetAvailableCash returns the cash balance as of date
func (p *Portfolio) GetAvailableCash(date time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range p.Transactions() {
		if tx.SettlementDate.After(date) {
			break
		}
		switch tx.OrderType {
		case domain.OrderTypeDeposit, domain.OrderTypeDividendReceipt:
			balance = balance.Add(tx.Value())
		case domain.OrderTypeWithdrawal:
			balance = balance.Sub(tx.Value())
		case domain.OrderTypeBuy, domain.OrderTypeBuyToCover:
			balance = balance.Sub(tx.Value()).Sub(tx.Commission)
		case domain.OrderTypeSell, domain.OrderTypeSellShort:
			balance = balance.Add(tx.Value()).Sub(tx.Commission)
		case domain.OrderTypeDividendReinvestment:
			balance = balance.Sub(tx.Commission)
		}
	}
	return balance
}
