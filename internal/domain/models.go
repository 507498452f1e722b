// Package domain provides core domain models and types.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransaction is returned when a transaction violates its construction rules
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrInvalidOrder is returned when an order violates its construction rules
	ErrInvalidOrder = errors.New("invalid order")
)

// OrderType identifies what a transaction or order does
type OrderType string

const (
	// Cash transactions
	OrderTypeDeposit         OrderType = "DEPOSIT"
	OrderTypeWithdrawal      OrderType = "WITHDRAWAL"
	OrderTypeDividendReceipt OrderType = "DIVIDEND_RECEIPT"

	// Share transactions
	OrderTypeBuy                  OrderType = "BUY"
	OrderTypeSell                 OrderType = "SELL"
	OrderTypeSellShort            OrderType = "SELL_SHORT"
	OrderTypeBuyToCover           OrderType = "BUY_TO_COVER"
	OrderTypeDividendReinvestment OrderType = "DIVIDEND_REINVESTMENT"
)

// AllOrderTypes lists every known order type
var AllOrderTypes = []OrderType{
	OrderTypeDeposit,
	OrderTypeWithdrawal,
	OrderTypeDividendReceipt,
	OrderTypeBuy,
	OrderTypeSell,
	OrderTypeSellShort,
	OrderTypeBuyToCover,
	OrderTypeDividendReinvestment,
}

// IsValid checks if the order type is known
func (t OrderType) IsValid() bool {
	return t.IsCash() || t.IsShare()
}

// IsCash returns true for transactions that move cash without a ticker
func (t OrderType) IsCash() bool {
	switch t {
	case OrderTypeDeposit, OrderTypeWithdrawal, OrderTypeDividendReceipt:
		return true
	}
	return false
}

// IsShare returns true for transactions that move shares of a ticker
func (t OrderType) IsShare() bool {
	return t.IsOpening() || t.IsClosing()
}

// IsOpening returns true for transactions that open a lot
func (t OrderType) IsOpening() bool {
	switch t {
	case OrderTypeBuy, OrderTypeSellShort, OrderTypeDividendReinvestment:
		return true
	}
	return false
}

// IsClosing returns true for transactions that consume open lots
func (t OrderType) IsClosing() bool {
	return t == OrderTypeSell || t == OrderTypeBuyToCover
}

// IsShort returns true for the short side of the book
func (t OrderType) IsShort() bool {
	return t == OrderTypeSellShort || t == OrderTypeBuyToCover
}

// IsOrderable returns true for the types an Order may carry
func (t OrderType) IsOrderable() bool {
	switch t {
	case OrderTypeBuy, OrderTypeSell, OrderTypeSellShort, OrderTypeBuyToCover:
		return true
	}
	return false
}

// OrderTypeFromString parses an order type (case-insensitive)
func OrderTypeFromString(value string) (OrderType, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("invalid order type: empty string")
	}

	t := OrderType(strings.ToUpper(strings.TrimSpace(value)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid order type: %s", value)
	}
	return t, nil
}

// OrderState is the lifecycle state of a submitted order
type OrderState string

const (
	OrderStateSubmitted OrderState = "SUBMITTED"
	OrderStateFilled    OrderState = "FILLED"
	OrderStateCancelled OrderState = "CANCELLED"
	OrderStateExpired   OrderState = "EXPIRED"
)

// IsTerminal returns true once an order can no longer change state
func (s OrderState) IsTerminal() bool {
	return s == OrderStateFilled || s == OrderStateCancelled || s == OrderStateExpired
}

// NormalizeTicker upper-cases and trims a ticker symbol
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
