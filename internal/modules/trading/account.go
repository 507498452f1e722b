package trading

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/shopspring/decimal"
)

// Account bundles what the engine needs to validate and fill orders
type Account struct {
	Features    domain.AccountFeatures
	Commissions domain.CommissionSchedule
	Portfolio   *portfolio.Portfolio
}

// accountFeatures is a static feature set
type accountFeatures struct {
	supported map[domain.OrderType]bool
	margin    bool
	leverage  map[string]decimal.Decimal
	fallback  decimal.Decimal
}

// CashAccountFeatures supports buying and selling long only
func CashAccountFeatures() domain.AccountFeatures {
	return &accountFeatures{
		supported: map[domain.OrderType]bool{
			domain.OrderTypeBuy:  true,
			domain.OrderTypeSell: true,
		},
		leverage: map[string]decimal.Decimal{},
		fallback: decimal.NewFromInt(1),
	}
}

// MarginAccountFeatures supports every orderable type. Leverage is looked up
// per ticker, falling back to defaultLeverage.
func MarginAccountFeatures(defaultLeverage decimal.Decimal, perTicker map[string]decimal.Decimal) domain.AccountFeatures {
	leverage := make(map[string]decimal.Decimal, len(perTicker))
	for ticker, l := range perTicker {
		leverage[domain.NormalizeTicker(ticker)] = l
	}
	return &accountFeatures{
		supported: map[domain.OrderType]bool{
			domain.OrderTypeBuy:        true,
			domain.OrderTypeSell:       true,
			domain.OrderTypeSellShort:  true,
			domain.OrderTypeBuyToCover: true,
		},
		margin:   true,
		leverage: leverage,
		fallback: defaultLeverage,
	}
}

func (f *accountFeatures) Supports(orderType domain.OrderType) bool {
	return f.supported[orderType]
}

func (f *accountFeatures) IsMarginAccount() bool {
	return f.margin
}

func (f *accountFeatures) Leverage(ticker string) decimal.Decimal {
	if l, ok := f.leverage[domain.NormalizeTicker(ticker)]; ok {
		return l
	}
	return f.fallback
}

// FlatCommission charges the same amount for every order
type FlatCommission struct {
	Amount decimal.Decimal
}

// PriceCheck returns the flat amount
func (c FlatCommission) PriceCheck(order domain.Order) decimal.Decimal {
	return c.Amount
}

// CommissionTier charges Amount for orders of at most MaxShares shares
type CommissionTier struct {
	MaxShares decimal.Decimal
	Amount    decimal.Decimal
}

// TieredCommission picks the first tier whose MaxShares covers the order,
// or Above when the order is larger than every tier
type TieredCommission struct {
	Tiers []CommissionTier
	Above decimal.Decimal
}

// NewTieredCommission sorts tiers by share ceiling
func NewTieredCommission(tiers []CommissionTier, above decimal.Decimal) TieredCommission {
	sorted := make([]CommissionTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MaxShares.LessThan(sorted[j].MaxShares)
	})
	return TieredCommission{Tiers: sorted, Above: above}
}

// PriceCheck returns the commission for the order's share count
func (c TieredCommission) PriceCheck(order domain.Order) decimal.Decimal {
	for _, tier := range c.Tiers {
		if order.Shares.LessThanOrEqual(tier.MaxShares) {
			return tier.Amount
		}
	}
	return c.Above
}

// ParseCommissionTiers parses "shares:amount,shares:amount". The largest
// tier's amount also applies above it.
func ParseCommissionTiers(raw string) (TieredCommission, error) {
	var tiers []CommissionTier
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return TieredCommission{}, fmt.Errorf("invalid commission tier %q: expected shares:amount", part)
		}
		maxShares, err := decimal.NewFromString(strings.TrimSpace(fields[0]))
		if err != nil {
			return TieredCommission{}, fmt.Errorf("invalid tier shares %q: %w", fields[0], err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(fields[1]))
		if err != nil {
			return TieredCommission{}, fmt.Errorf("invalid tier amount %q: %w", fields[1], err)
		}
		if maxShares.IsNegative() || amount.IsNegative() {
			return TieredCommission{}, fmt.Errorf("invalid commission tier %q: values cannot be negative", part)
		}
		tiers = append(tiers, CommissionTier{MaxShares: maxShares, Amount: amount})
	}
	if len(tiers) == 0 {
		return TieredCommission{}, fmt.Errorf("no commission tiers in %q", raw)
	}

	schedule := NewTieredCommission(tiers, decimal.Zero)
	schedule.Above = schedule.Tiers[len(schedule.Tiers)-1].Amount
	return schedule, nil
}
