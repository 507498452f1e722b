package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary collects every basket calculation as of one date
type Summary struct {
	Date              time.Time        `json:"date"`
	Head              time.Time        `json:"head"`
	Tail              time.Time        `json:"tail"`
	Holdings          int              `json:"holdings"`
	Cost              decimal.Decimal  `json:"cost"`
	Proceeds          decimal.Decimal  `json:"proceeds"`
	Commissions       decimal.Decimal  `json:"commissions"`
	GrossProfit       decimal.Decimal  `json:"gross_profit"`
	NetProfit         decimal.Decimal  `json:"net_profit"`
	AverageProfit     decimal.Decimal  `json:"average_profit"`
	MedianProfit      decimal.Decimal  `json:"median_profit"`
	StandardDeviation *float64         `json:"standard_deviation"` // nil when NaN
	AverageCost       decimal.Decimal  `json:"average_cost"`
	GrossReturn       *decimal.Decimal `json:"gross_return"`
	NetReturn         *decimal.Decimal `json:"net_return"`
	AnnualGrossReturn *decimal.Decimal `json:"annual_gross_return"`
	AnnualNetReturn   *decimal.Decimal `json:"annual_net_return"`
}

// Summarize runs every calculator over basket as of date
func Summarize(basket Basket, date time.Time) Summary {
	s := Summary{
		Date:              date,
		Head:              basket.Head(),
		Tail:              basket.Tail(),
		Holdings:          len(basket.Holdings(date)),
		Cost:              CalculateCost(basket, date),
		Proceeds:          CalculateProceeds(basket, date),
		Commissions:       CalculateCommissions(basket, date),
		GrossProfit:       CalculateGrossProfit(basket, date),
		NetProfit:         CalculateNetProfit(basket, date),
		AverageProfit:     CalculateAverageProfit(basket, date),
		MedianProfit:      CalculateMedianProfit(basket, date),
		AverageCost:       CalculateAverageCost(basket, date),
		GrossReturn:       CalculateGrossReturn(basket, date),
		NetReturn:         CalculateNetReturn(basket, date),
		AnnualGrossReturn: CalculateAnnualGrossReturn(basket, date),
		AnnualNetReturn:   CalculateAnnualNetReturn(basket, date),
	}

	if sd := CalculateStandardDeviation(basket, date); sd == sd {
		s.StandardDeviation = &sd
	}
	return s
}
