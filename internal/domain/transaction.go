package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable ledger record.
// Cash transactions carry their amount in Price with Shares fixed at one.
type Transaction struct {
	SettlementDate time.Time       `json:"settlement_date"`
	OrderType      OrderType       `json:"order_type"`
	Ticker         string          `json:"ticker,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Shares         decimal.Decimal `json:"shares"`
	Commission     decimal.Decimal `json:"commission"`
}

// NewTransaction creates a transaction of any type, dispatching on orderType.
// For cash types price is the amount and shares/ticker must be empty.
func NewTransaction(date time.Time, orderType OrderType, ticker string, price, shares, commission decimal.Decimal) (Transaction, error) {
	if orderType.IsCash() {
		if NormalizeTicker(ticker) != "" {
			return Transaction{}, fmt.Errorf("%w: %s carries no ticker, got %q", ErrInvalidTransaction, orderType, ticker)
		}
		return NewCashTransaction(date, orderType, price)
	}
	return NewShareTransaction(date, orderType, ticker, price, shares, commission)
}

// NewShareTransaction creates a Buy, Sell, SellShort, BuyToCover or DividendReinvestment
func NewShareTransaction(date time.Time, orderType OrderType, ticker string, price, shares, commission decimal.Decimal) (Transaction, error) {
	if !orderType.IsShare() {
		return Transaction{}, fmt.Errorf("%w: %s is not a share transaction", ErrInvalidTransaction, orderType)
	}

	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return Transaction{}, fmt.Errorf("%w: ticker cannot be empty", ErrInvalidTransaction)
	}
	if shares.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: shares cannot be negative", ErrInvalidTransaction)
	}
	if price.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: price cannot be negative", ErrInvalidTransaction)
	}
	if commission.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: commission cannot be negative", ErrInvalidTransaction)
	}

	return Transaction{
		SettlementDate: date,
		OrderType:      orderType,
		Ticker:         ticker,
		Price:          price,
		Shares:         shares,
		Commission:     commission,
	}, nil
}

// NewCashTransaction creates a Deposit, Withdrawal or DividendReceipt
func NewCashTransaction(date time.Time, orderType OrderType, amount decimal.Decimal) (Transaction, error) {
	if !orderType.IsCash() {
		return Transaction{}, fmt.Errorf("%w: %s is not a cash transaction", ErrInvalidTransaction, orderType)
	}
	if amount.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: amount cannot be negative", ErrInvalidTransaction)
	}

	return Transaction{
		SettlementDate: date,
		OrderType:      orderType,
		Price:          amount,
		Shares:         decimal.NewFromInt(1),
		Commission:     decimal.Zero,
	}, nil
}

// Value returns price * shares
func (t Transaction) Value() decimal.Decimal {
	return t.Price.Mul(t.Shares)
}

// Equal compares two transactions field by field
func (t Transaction) Equal(other Transaction) bool {
	return t.SettlementDate.Equal(other.SettlementDate) &&
		t.OrderType == other.OrderType &&
		t.Ticker == other.Ticker &&
		t.Price.Equal(other.Price) &&
		t.Shares.Equal(other.Shares) &&
		t.Commission.Equal(other.Commission)
}
