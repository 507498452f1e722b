package analysis

import (
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	testingpkg "github.com/aristath/tradesim/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(t *testing.T, ticker string, start time.Time, closes ...string) *historical.PriceSeries {
	t.Helper()
	var points []historical.PricePoint
	for date, price := range testingpkg.DailyCloses(start, closes...) {
		points = append(points, historical.PricePoint{Date: date, Close: price})
	}
	s, err := historical.NewPriceSeries(ticker, points)
	require.NoError(t, err)
	return s
}

func newPortfolio(t *testing.T, cash string, txs ...domain.Transaction) *portfolio.Portfolio {
	t.Helper()
	p := portfolio.NewPortfolio(clock.NewFrozen(testingpkg.Day(2024, time.January, 31)))
	if cash != "" {
		deposit := testingpkg.NewTransactionFixture(t, testingpkg.Day(2023, time.December, 1), domain.OrderTypeDeposit, "", cash, "0", "0")
		require.NoError(t, p.AddTransaction(deposit))
	}
	require.NoError(t, p.AddTransactions(txs...))
	return p
}

var (
	jan2 = testingpkg.Day(2024, time.January, 2)
	jan3 = testingpkg.Day(2024, time.January, 3)
)

func TestDetermineOrdersFor_RisingBuysOneShare(t *testing.T) {
	analyzer := NewAnalyzer(24*time.Hour, zerolog.Nop())
	p := newPortfolio(t, "1000")
	s := series(t, "AAPL", jan2, "100", "105")

	orders, err := analyzer.DetermineOrdersFor(p, s, jan2, jan3, nil)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	order := orders[0]
	assert.Equal(t, domain.OrderTypeBuy, order.OrderType)
	assert.Equal(t, "AAPL", order.Ticker)
	assert.True(t, order.Shares.Equal(testingpkg.Dec("1")))
	assert.True(t, order.Price.Equal(testingpkg.Dec("105")))
	assert.True(t, order.Issued.Equal(jan3))
	assert.True(t, order.Expiration.Equal(jan3.Add(24*time.Hour)))
}

func TestDetermineOrdersFor_RisingWithoutCash(t *testing.T) {
	analyzer := NewAnalyzer(24*time.Hour, zerolog.Nop())
	s := series(t, "AAPL", jan2, "100", "105")

	tests := []struct {
		name string
		cash string
		want int
	}{
		{"no cash", "", 0},
		{"cash below close", "104.99", 0},
		{"cash exactly the close", "105", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := analyzer.DetermineOrdersFor(newPortfolio(t, tt.cash), s, jan2, jan3, nil)
			require.NoError(t, err)
			assert.Len(t, orders, tt.want)
		})
	}
}

func TestDetermineOrdersFor_FallingSellsHeldShares(t *testing.T) {
	analyzer := NewAnalyzer(24*time.Hour, zerolog.Nop())
	buy := testingpkg.NewTransactionFixture(t, testingpkg.Day(2023, time.December, 15), domain.OrderTypeBuy, "AAPL", "90", "7", "0")
	p := newPortfolio(t, "1000", buy)
	s := series(t, "AAPL", jan2, "105", "100")

	orders, err := analyzer.DetermineOrdersFor(p, s, jan2, jan3, nil)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderTypeSell, orders[0].OrderType)
	assert.True(t, orders[0].Shares.Equal(testingpkg.Dec("7")))
	assert.True(t, orders[0].Price.Equal(testingpkg.Dec("100")))
}

func TestDetermineOrdersFor_SellNetsOpenOrders(t *testing.T) {
	analyzer := NewAnalyzer(24*time.Hour, zerolog.Nop())
	buy := testingpkg.NewTransactionFixture(t, testingpkg.Day(2023, time.December, 15), domain.OrderTypeBuy, "AAPL", "90", "10", "0")
	p := newPortfolio(t, "0", buy)
	s := series(t, "AAPL", jan2, "105", "100")

	openSell := func(ticker, shares string) *domain.Order {
		return testingpkg.NewOrderFixture(t, jan2, domain.OrderTypeSell, ticker, shares, "104")
	}

	tests := []struct {
		name  string
		open  []*domain.Order
		want  string
		empty bool
	}{
		{name: "no open orders", want: "10"},
		{name: "partial open sell", open: []*domain.Order{openSell("AAPL", "4")}, want: "6"},
		{name: "two partial open sells", open: []*domain.Order{openSell("AAPL", "4"), openSell("AAPL", "5")}, want: "1"},
		{name: "open sell covers position", open: []*domain.Order{openSell("AAPL", "10")}, empty: true},
		{name: "open sell exceeds position", open: []*domain.Order{openSell("AAPL", "12")}, empty: true},
		{name: "other ticker ignored", open: []*domain.Order{openSell("MSFT", "10")}, want: "10"},
		{
			name: "open buy ignored",
			open: []*domain.Order{testingpkg.NewOrderFixture(t, jan2, domain.OrderTypeBuy, "AAPL", "3", "104")},
			want: "10",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders, err := analyzer.DetermineOrdersFor(p, s, jan2, jan3, tt.open)
			require.NoError(t, err)
			if tt.empty {
				assert.Empty(t, orders)
				return
			}
			require.Len(t, orders, 1)
			assert.True(t, orders[0].Shares.Equal(testingpkg.Dec(tt.want)), "got %s", orders[0].Shares)
		})
	}
}

func TestDetermineOrdersFor_NothingToDo(t *testing.T) {
	analyzer := NewAnalyzer(24*time.Hour, zerolog.Nop())
	p := newPortfolio(t, "1000")

	t.Run("falling without a position", func(t *testing.T) {
		orders, err := analyzer.DetermineOrdersFor(p, series(t, "AAPL", jan2, "105", "100"), jan2, jan3, nil)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("flat", func(t *testing.T) {
		orders, err := analyzer.DetermineOrdersFor(p, series(t, "AAPL", jan2, "100", "101", "100"), jan2, jan2.AddDate(0, 0, 2), nil)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("single close in window", func(t *testing.T) {
		orders, err := analyzer.DetermineOrdersFor(p, series(t, "AAPL", jan2, "100", "105"), jan3, jan3, nil)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("position fully sold", func(t *testing.T) {
		buy := testingpkg.NewTransactionFixture(t, testingpkg.Day(2023, time.December, 15), domain.OrderTypeBuy, "AAPL", "90", "5", "0")
		sell := testingpkg.NewTransactionFixture(t, testingpkg.Day(2023, time.December, 20), domain.OrderTypeSell, "AAPL", "95", "5", "0")
		closed := newPortfolio(t, "1000", buy, sell)
		orders, err := analyzer.DetermineOrdersFor(closed, series(t, "AAPL", jan2, "105", "100"), jan2, jan3, nil)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})
}

func TestDetermineOrdersFor_UsesWholeWindow(t *testing.T) {
	analyzer := NewAnalyzer(time.Hour, zerolog.Nop())
	p := newPortfolio(t, "1000")
	// Dips in the middle but ends above the first close
	s := series(t, "AAPL", jan2, "100", "90", "80", "101")

	orders, err := analyzer.DetermineOrdersFor(p, s, jan2, jan2.AddDate(0, 0, 3), nil)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderTypeBuy, orders[0].OrderType)
}

func TestOpenSellShares(t *testing.T) {
	orders := []*domain.Order{
		testingpkg.NewOrderFixture(t, jan2, domain.OrderTypeSell, "aapl", "2.5", "1"),
		testingpkg.NewOrderFixture(t, jan2, domain.OrderTypeSell, "AAPL", "1", "1"),
		testingpkg.NewOrderFixture(t, jan2, domain.OrderTypeBuyToCover, "AAPL", "9", "1"),
		nil,
	}
	assert.True(t, OpenSellShares(orders, "AAPL").Equal(testingpkg.Dec("3.5")))
	assert.True(t, OpenSellShares(nil, "AAPL").IsZero())
}
