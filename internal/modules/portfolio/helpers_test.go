package portfolio

import (
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func shareTx(t *testing.T, date time.Time, orderType domain.OrderType, ticker, price, shares, commission string) domain.Transaction {
	t.Helper()
	tx, err := domain.NewShareTransaction(date, orderType, ticker, dec(price), dec(shares), dec(commission))
	require.NoError(t, err)
	return tx
}

func cashTx(t *testing.T, date time.Time, orderType domain.OrderType, amount string) domain.Transaction {
	t.Helper()
	tx, err := domain.NewCashTransaction(date, orderType, dec(amount))
	require.NoError(t, err)
	return tx
}

func newPosition(t *testing.T, ticker string, txs ...domain.Transaction) *Position {
	t.Helper()
	pos, err := NewPosition(ticker)
	require.NoError(t, err)
	for _, tx := range txs {
		require.NoError(t, pos.AddTransaction(tx))
	}
	return pos
}
