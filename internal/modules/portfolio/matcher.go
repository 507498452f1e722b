package portfolio

import (
	"sort"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
)

// Basket is either a single-ticker Position or the whole Portfolio
type Basket interface {
	// Transactions returns a snapshot in settlement-date order
	Transactions() []domain.Transaction
	// Holdings returns the closed lots as of date
	Holdings(date time.Time) []Holding
	// OpenLots returns the unmatched lots as of date
	OpenLots(date time.Time) []Lot
	Head() time.Time
	Tail() time.Time
}

// ComputeHoldings returns the basket's closed holdings as of asOf.
// It is a pure function of the transaction prefix settled on or before asOf.
func ComputeHoldings(basket Basket, asOf time.Time) []Holding {
	return basket.Holdings(asOf)
}

// fifoQueue is one side (long or short) of a ticker's open lots
type fifoQueue []Lot

// matchLots walks share transactions in settlement order up to asOf and pairs
// closing transactions with the oldest open lots first.
func matchLots(txs []domain.Transaction, asOf time.Time) ([]Holding, []Lot) {
	queues := make(map[string]*[2]fifoQueue) // ticker -> [long, short]
	tickers := make([]string, 0)
	holdings := make([]Holding, 0)

	for _, tx := range txs {
		if tx.SettlementDate.After(asOf) {
			break
		}
		if !tx.OrderType.IsShare() {
			continue
		}

		q, ok := queues[tx.Ticker]
		if !ok {
			q = &[2]fifoQueue{}
			queues[tx.Ticker] = q
			tickers = append(tickers, tx.Ticker)
		}
		side := 0
		if tx.OrderType.IsShort() {
			side = 1
		}

		if tx.OrderType.IsOpening() {
			if !tx.Shares.IsPositive() {
				continue
			}
			q[side] = append(q[side], Lot{
				Ticker:         tx.Ticker,
				OpenDate:       tx.SettlementDate,
				OpenPrice:      tx.Price,
				OpenCommission: tx.Commission,
				Shares:         tx.Shares,
				Short:          side == 1,
			})
			continue
		}

		remaining := tx.Shares
		for remaining.IsPositive() && len(q[side]) > 0 {
			front := &q[side][0]
			matched := decimal.Min(front.Shares, remaining)

			holdings = append(holdings, Holding{
				Ticker:          tx.Ticker,
				OpenDate:        front.OpenDate,
				OpenPrice:       front.OpenPrice,
				OpenCommission:  front.OpenCommission,
				CloseDate:       tx.SettlementDate,
				ClosePrice:      tx.Price,
				CloseCommission: tx.Commission,
				Shares:          matched,
				Short:           front.Short,
			})

			remaining = remaining.Sub(matched)
			front.Shares = front.Shares.Sub(matched)
			if front.Shares.IsZero() {
				q[side] = q[side][1:]
			}
		}
	}

	sortHoldings(holdings)

	open := make([]Lot, 0)
	for _, ticker := range tickers {
		q := queues[ticker]
		open = append(open, q[0]...)
		open = append(open, q[1]...)
	}
	return holdings, open
}

// sortHoldings orders by open date, then close date. Stable, so fragments
// of one closing transaction keep their FIFO order.
func sortHoldings(holdings []Holding) {
	sort.SliceStable(holdings, func(i, j int) bool {
		if !holdings[i].OpenDate.Equal(holdings[j].OpenDate) {
			return holdings[i].OpenDate.Before(holdings[j].OpenDate)
		}
		return holdings[i].CloseDate.Before(holdings[j].CloseDate)
	})
}

// sortTransactions orders by settlement date, keeping insertion order for ties
func sortTransactions(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].SettlementDate.Before(txs[j].SettlementDate)
	})
}
