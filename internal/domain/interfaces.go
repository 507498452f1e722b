package domain

import "github.com/shopspring/decimal"

// CommissionSchedule prices an order's commission.
// Flat, tiered or any other schedule is opaque to the engine.
type CommissionSchedule interface {
	PriceCheck(order Order) decimal.Decimal
}

// AccountFeatures describes what an account is allowed to do
type AccountFeatures interface {
	// Supports reports whether orders of this type may be submitted
	Supports(orderType OrderType) bool

	// IsMarginAccount reports whether the account may borrow
	IsMarginAccount() bool

	// Leverage returns the leverage allowed for a ticker (1 for cash accounts)
	Leverage(ticker string) decimal.Decimal
}
