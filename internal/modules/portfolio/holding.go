package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a closed, matched lot: one opening lot fragment paired with one
// closing transaction fragment. Holdings are produced by the matcher and never
// mutated.
//
// When a transaction is split across several holdings, every resulting holding
// carries that transaction's full commission. Summing commissions by holding
// therefore overcounts against summing them by transaction; CalculateCommissions
// works from raw transactions and is unaffected.
type Holding struct {
	Ticker          string          `json:"ticker"`
	OpenDate        time.Time       `json:"open_date"`
	OpenPrice       decimal.Decimal `json:"open_price"`
	OpenCommission  decimal.Decimal `json:"open_commission"`
	CloseDate       time.Time       `json:"close_date"`
	ClosePrice      decimal.Decimal `json:"close_price"`
	CloseCommission decimal.Decimal `json:"close_commission"`
	Shares          decimal.Decimal `json:"shares"`
	Short           bool            `json:"short"`
}

// Equal reports structural equality
func (h Holding) Equal(other Holding) bool {
	return h.Ticker == other.Ticker &&
		h.OpenDate.Equal(other.OpenDate) &&
		h.OpenPrice.Equal(other.OpenPrice) &&
		h.OpenCommission.Equal(other.OpenCommission) &&
		h.CloseDate.Equal(other.CloseDate) &&
		h.ClosePrice.Equal(other.ClosePrice) &&
		h.CloseCommission.Equal(other.CloseCommission) &&
		h.Shares.Equal(other.Shares) &&
		h.Short == other.Short
}

// Cost is open price * shares + open commission
func (h Holding) Cost() decimal.Decimal {
	return h.OpenPrice.Mul(h.Shares).Add(h.OpenCommission)
}

// Proceeds is close price * shares - close commission
func (h Holding) Proceeds() decimal.Decimal {
	return h.ClosePrice.Mul(h.Shares).Sub(h.CloseCommission)
}

// Invested is open price * shares, without commission
func (h Holding) Invested() decimal.Decimal {
	return h.OpenPrice.Mul(h.Shares)
}

// Commissions is open commission + close commission
func (h Holding) Commissions() decimal.Decimal {
	return h.OpenCommission.Add(h.CloseCommission)
}

// GrossProfit is (close - open) * shares, sign flipped for short holdings
func (h Holding) GrossProfit() decimal.Decimal {
	diff := h.ClosePrice.Sub(h.OpenPrice)
	if h.Short {
		diff = diff.Neg()
	}
	return diff.Mul(h.Shares)
}

// NetProfit is GrossProfit minus both commissions
func (h Holding) NetProfit() decimal.Decimal {
	return h.GrossProfit().Sub(h.Commissions())
}

// Lot is a block of shares opened by one transaction and not yet fully closed
type Lot struct {
	Ticker         string          `json:"ticker"`
	OpenDate       time.Time       `json:"open_date"`
	OpenPrice      decimal.Decimal `json:"open_price"`
	OpenCommission decimal.Decimal `json:"open_commission"`
	Shares         decimal.Decimal `json:"shares"` // remaining
	Short          bool            `json:"short"`
}
