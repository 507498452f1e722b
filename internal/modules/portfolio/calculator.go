package portfolio

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

var daysPerYear = decimal.NewFromInt(365)

// CalculateCost sums price * shares of opening transactions settled on or before date
func CalculateCost(basket Basket, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range settledShareTransactions(basket, date) {
		if tx.OrderType.IsOpening() {
			total = total.Add(tx.Value())
		}
	}
	return total
}

// CalculateProceeds sums price * shares of closing transactions settled on or before date
func CalculateProceeds(basket Basket, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range settledShareTransactions(basket, date) {
		if tx.OrderType.IsClosing() {
			total = total.Add(tx.Value())
		}
	}
	return total
}

// CalculateCommissions sums the commission of every transaction settled on or before date
func CalculateCommissions(basket Basket, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range settledShareTransactions(basket, date) {
		total = total.Add(tx.Commission)
	}
	return total
}

func settledShareTransactions(basket Basket, date time.Time) []domain.Transaction {
	settled := make([]domain.Transaction, 0)
	for _, tx := range basket.Transactions() {
		if tx.SettlementDate.After(date) {
			break
		}
		if tx.OrderType.IsShare() {
			settled = append(settled, tx)
		}
	}
	return settled
}

// CalculateGrossProfit sums (close - open) * shares over holdings closed on or before date
func CalculateGrossProfit(basket Basket, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, h := range basket.Holdings(date) {
		total = total.Add(h.GrossProfit())
	}
	return total
}

// CalculateNetProfit is the gross profit less both commissions of every holding
func CalculateNetProfit(basket Basket, date time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, h := range basket.Holdings(date) {
		total = total.Add(h.NetProfit())
	}
	return total
}

// CalculateAverageProfit is the mean gross profit per holding, zero without holdings
func CalculateAverageProfit(basket Basket, date time.Time) decimal.Decimal {
	holdings := basket.Holdings(date)
	if len(holdings) == 0 {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.GrossProfit())
	}
	return total.Div(decimal.NewFromInt(int64(len(holdings))))
}

// CalculateMedianProfit is the median gross profit per holding, zero without holdings
func CalculateMedianProfit(basket Basket, date time.Time) decimal.Decimal {
	profits := grossProfits(basket.Holdings(date))
	if len(profits) == 0 {
		return decimal.Zero
	}
	sort.Slice(profits, func(i, j int) bool {
		return profits[i].LessThan(profits[j])
	})

	mid := len(profits) / 2
	if len(profits)%2 == 1 {
		return profits[mid]
	}
	return profits[mid-1].Add(profits[mid]).Div(decimal.NewFromInt(2))
}

// CalculateStandardDeviation returns sqrt(sum((x-mean)^2)/n - 1) over per-holding
// gross profit. The -1 is applied after the division. Zero for n <= 1; NaN when
// the radicand is negative.
func CalculateStandardDeviation(basket Basket, date time.Time) float64 {
	profits := grossProfits(basket.Holdings(date))
	if len(profits) <= 1 {
		return 0
	}

	xs := make([]float64, len(profits))
	for i, p := range profits {
		xs[i] = p.InexactFloat64()
	}
	mean := stat.Mean(xs, nil)

	sum := 0.0
	for _, x := range xs {
		sum += (x - mean) * (x - mean)
	}
	return math.Sqrt(sum/float64(len(xs)) - 1)
}

func grossProfits(holdings []Holding) []decimal.Decimal {
	profits := make([]decimal.Decimal, len(holdings))
	for i, h := range holdings {
		profits[i] = h.GrossProfit()
	}
	return profits
}

// CalculateAverageCost returns the share-weighted open price of the lots still
// open as of date, zero when nothing is open
func CalculateAverageCost(basket Basket, date time.Time) decimal.Decimal {
	shares := decimal.Zero
	cost := decimal.Zero
	for _, lot := range basket.OpenLots(date) {
		shares = shares.Add(lot.Shares)
		cost = cost.Add(lot.OpenPrice.Mul(lot.Shares))
	}
	if shares.IsZero() {
		return decimal.Zero
	}
	return cost.Div(shares)
}

// CalculateGrossReturn returns profit over invested capital for the holdings
// closed on or before date. Nil when nothing has closed: an open position has
// no return.
func CalculateGrossReturn(basket Basket, date time.Time) *decimal.Decimal {
	return grossReturn(basket.Holdings(date))
}

// CalculateNetReturn is CalculateGrossReturn with both commissions folded in
func CalculateNetReturn(basket Basket, date time.Time) *decimal.Decimal {
	return netReturn(basket.Holdings(date))
}

// CalculateAnnualGrossReturn annualizes the gross return linearly:
// return * 365 / holding days. For a portfolio it is the average of each
// position's annual return weighted by shares closed.
func CalculateAnnualGrossReturn(basket Basket, date time.Time) *decimal.Decimal {
	if agg, ok := basket.(positionLister); ok {
		return weightedAnnualReturn(agg, date, grossReturn)
	}
	holdings := basket.Holdings(date)
	return annualize(grossReturn(holdings), holdings)
}

// CalculateAnnualNetReturn annualizes the net return the same way
func CalculateAnnualNetReturn(basket Basket, date time.Time) *decimal.Decimal {
	if agg, ok := basket.(positionLister); ok {
		return weightedAnnualReturn(agg, date, netReturn)
	}
	holdings := basket.Holdings(date)
	return annualize(netReturn(holdings), holdings)
}

type positionLister interface {
	Positions() []*Position
}

type returnFunc func([]Holding) *decimal.Decimal

func grossReturn(holdings []Holding) *decimal.Decimal {
	if len(holdings) == 0 {
		return nil
	}
	profit := decimal.Zero
	invested := decimal.Zero
	for _, h := range holdings {
		profit = profit.Add(h.GrossProfit())
		invested = invested.Add(h.Invested())
	}
	if invested.IsZero() {
		return nil
	}
	r := profit.Div(invested)
	return &r
}

func netReturn(holdings []Holding) *decimal.Decimal {
	if len(holdings) == 0 {
		return nil
	}
	profit := decimal.Zero
	invested := decimal.Zero
	for _, h := range holdings {
		profit = profit.Add(h.NetProfit())
		invested = invested.Add(h.Cost())
	}
	if invested.IsZero() {
		return nil
	}
	r := profit.Div(invested)
	return &r
}

// annualize scales r by 365 over the days between the first open and the last
// close on or before the calculation date. FIFO closes the oldest lot first,
// so the first open is the basket's head; lots still open never extend the
// period. A same-day round trip counts as one day.
func annualize(r *decimal.Decimal, holdings []Holding) *decimal.Decimal {
	if r == nil {
		return nil
	}
	days := holdingDays(holdings)
	annual := r.Mul(daysPerYear).Div(decimal.NewFromInt(days))
	return &annual
}

func holdingDays(holdings []Holding) int64 {
	head := holdings[0].OpenDate
	tail := holdings[0].CloseDate
	for _, h := range holdings[1:] {
		if h.OpenDate.Before(head) {
			head = h.OpenDate
		}
		if h.CloseDate.After(tail) {
			tail = h.CloseDate
		}
	}
	days := int64(tail.Sub(head).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

func weightedAnnualReturn(agg positionLister, date time.Time, fn returnFunc) *decimal.Decimal {
	weighted := decimal.Zero
	weights := decimal.Zero

	for _, pos := range agg.Positions() {
		holdings := pos.Holdings(date)
		annual := annualize(fn(holdings), holdings)
		if annual == nil {
			continue
		}
		sold := decimal.Zero
		for _, h := range holdings {
			sold = sold.Add(h.Shares)
		}
		weighted = weighted.Add(annual.Mul(sold))
		weights = weights.Add(sold)
	}

	if weights.IsZero() {
		return nil
	}
	r := weighted.Div(weights)
	return &r
}
