package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a request to trade shares. Orders are compared by ID, never by value:
// two orders with identical fields are still distinct orders.
type Order struct {
	ID         string          `json:"id"`
	Issued     time.Time       `json:"issued"`
	Expiration time.Time       `json:"expiration"`
	OrderType  OrderType       `json:"order_type"`
	Ticker     string          `json:"ticker"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
}

// NewOrder validates and creates an order with a fresh id
func NewOrder(issued, expiration time.Time, orderType OrderType, ticker string, shares, price decimal.Decimal) (*Order, error) {
	o := &Order{
		ID:         uuid.New().String(),
		Issued:     issued,
		Expiration: expiration,
		OrderType:  orderType,
		Ticker:     NormalizeTicker(ticker),
		Shares:     shares,
		Price:      price,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the order's construction rules
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidOrder)
	}
	if !o.OrderType.IsOrderable() {
		return fmt.Errorf("%w: %q cannot be ordered", ErrInvalidOrder, o.OrderType)
	}
	if o.Ticker == "" {
		return fmt.Errorf("%w: ticker cannot be empty", ErrInvalidOrder)
	}
	if !o.Shares.IsPositive() {
		return fmt.Errorf("%w: shares must be positive", ErrInvalidOrder)
	}
	if o.Price.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidOrder)
	}
	if o.Expiration.Before(o.Issued) {
		return fmt.Errorf("%w: expiration %s before issue %s", ErrInvalidOrder,
			o.Expiration.Format(time.RFC3339), o.Issued.Format(time.RFC3339))
	}
	return nil
}

// ToTransaction builds the share transaction produced when the order executes
func (o *Order) ToTransaction(settlement time.Time, commission decimal.Decimal) (Transaction, error) {
	return NewShareTransaction(settlement, o.OrderType, o.Ticker, o.Price, o.Shares, commission)
}

// OrderStatus is the snapshot returned when an order is accepted for execution
type OrderStatus struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Ticker     string          `json:"ticker"`
	Price      decimal.Decimal `json:"price"`
	Shares     decimal.Decimal `json:"shares"`
	OrderType  OrderType       `json:"order_type"`
	SubmitTime time.Time       `json:"submit_time"`
}
