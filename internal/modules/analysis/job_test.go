package analysis

import (
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/aristath/tradesim/internal/modules/trading"
	testingpkg "github.com/aristath/tradesim/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	open []domain.Order
}

func (e *fakeEngine) GetOpenOrders() []domain.Order {
	return e.open
}

type jobFixture struct {
	job       *AnalysisJob
	trades    *trading.TradeManager
	brokerage *trading.MemoryOrderStore
	engine    *fakeEngine
	portfolio *portfolio.Portfolio
	prices    *historical.MemoryProvider
	clock     *clock.Frozen
	bus       *events.Bus
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()

	prices := historical.NewMemoryProvider()
	prices.Put(series(t, "AAPL", jan2, "100", "105"))
	prices.Put(series(t, "MSFT", jan2, "310", "300"))
	prices.Put(series(t, "FLAT", jan2, "50", "50"))

	held := testingpkg.NewTransactionFixture(t, testingpkg.Day(2023, time.December, 15), domain.OrderTypeBuy, "MSFT", "280", "5", "0")
	p := newPortfolio(t, "1000", held)

	brokerage := trading.NewMemoryOrderStore()
	trades := trading.NewTradeManager(brokerage, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	engine := &fakeEngine{}
	frozen := clock.NewFrozen(jan3.Add(16 * time.Hour))

	job := NewAnalysisJob(AnalysisJobConfig{
		Analyzer:     NewAnalyzer(24*time.Hour, zerolog.Nop()),
		Portfolio:    p,
		Prices:       prices,
		Trades:       trades,
		Engine:       engine,
		Clock:        frozen,
		LookbackDays: 1,
		EventManager: events.NewManager(bus, zerolog.Nop()),
	}, zerolog.Nop())

	return &jobFixture{
		job:       job,
		trades:    trades,
		brokerage: brokerage,
		engine:    engine,
		portfolio: p,
		prices:    prices,
		clock:     frozen,
		bus:       bus,
	}
}

func TestAnalysisJob_Name(t *testing.T) {
	assert.Equal(t, "analysis", newJobFixture(t).job.Name())
}

func TestAnalysisJob_Window(t *testing.T) {
	f := newJobFixture(t)
	now := time.Date(2024, time.January, 10, 15, 45, 0, 0, time.UTC)

	start, end := f.job.Window(now)
	assert.Equal(t, time.Date(2024, time.January, 9, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)

	wide := NewAnalysisJob(AnalysisJobConfig{LookbackDays: 7}, zerolog.Nop())
	start, _ = wide.Window(now)
	assert.Equal(t, time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC), start)

	clamped := NewAnalysisJob(AnalysisJobConfig{LookbackDays: 0}, zerolog.Nop())
	start, _ = clamped.Window(now)
	assert.Equal(t, time.Date(2024, time.January, 9, 0, 0, 0, 0, time.UTC), start)
}

func TestAnalysisJob_RunSubmitsGeneratedOrders(t *testing.T) {
	f := newJobFixture(t)

	var generated []*events.Event
	f.bus.Subscribe(events.OrdersGenerated, func(event *events.Event) {
		generated = append(generated, event)
	})

	require.NoError(t, f.job.Run())

	open, err := f.brokerage.GetOpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 2)

	byTicker := make(map[string]*domain.Order)
	for _, order := range open {
		byTicker[order.Ticker] = order
	}
	require.Contains(t, byTicker, "AAPL")
	require.Contains(t, byTicker, "MSFT")
	assert.Equal(t, domain.OrderTypeBuy, byTicker["AAPL"].OrderType)
	assert.Equal(t, domain.OrderTypeSell, byTicker["MSFT"].OrderType)
	assert.True(t, byTicker["MSFT"].Shares.Equal(testingpkg.Dec("5")))
	assert.True(t, byTicker["MSFT"].Price.Equal(testingpkg.Dec("300")))

	assert.Len(t, f.trades.OpenOrders(), 2)

	require.Len(t, generated, 1)
	assert.Equal(t, "analysis", generated[0].Module)
	assert.Equal(t, float64(2), generated[0].Data["count"])
}

func TestAnalysisJob_SecondRunDoesNotOversell(t *testing.T) {
	f := newJobFixture(t)

	require.NoError(t, f.job.Run())
	require.NoError(t, f.job.Run())

	open, err := f.brokerage.GetOpenOrders()
	require.NoError(t, err)

	sells := OpenSellShares(open, "MSFT")
	assert.True(t, sells.Equal(testingpkg.Dec("5")), "open MSFT sells: %s", sells)

	buys := 0
	for _, order := range open {
		if order.Ticker == "AAPL" && order.OrderType == domain.OrderTypeBuy {
			buys++
		}
	}
	assert.Equal(t, 2, buys)
}

func TestAnalysisJob_PicksUpBrokerageOrders(t *testing.T) {
	f := newJobFixture(t)

	// Submitted directly to the brokerage, never through the trade manager
	external := testingpkg.NewOrderFixture(t, jan3, domain.OrderTypeSell, "MSFT", "3", "300")
	require.NoError(t, f.brokerage.SubmitOrders([]*domain.Order{external}))

	require.NoError(t, f.job.Run())

	open, err := f.brokerage.GetOpenOrders()
	require.NoError(t, err)
	assert.True(t, OpenSellShares(open, "MSFT").Equal(testingpkg.Dec("5")))
}

func TestAnalysisJob_SellsAgainAfterEarlierSellSettled(t *testing.T) {
	f := newJobFixture(t)
	require.NoError(t, f.job.Run())

	// Both generated orders convert and settle on Jan 4
	f.clock.Set(testingpkg.Day(2024, time.January, 5).Add(17 * time.Hour))
	settlement := trading.NewSettlementJob(f.brokerage, f.portfolio, f.clock, nil, zerolog.Nop())
	require.NoError(t, settlement.Run())
	require.Empty(t, settlement.Unsettled())
	assert.True(t, f.portfolio.GetPosition("MSFT").LongShares(f.clock.Now()).IsZero())

	rebuy := testingpkg.NewTransactionFixture(t, testingpkg.Day(2024, time.January, 5), domain.OrderTypeBuy, "MSFT", "290", "5", "0")
	require.NoError(t, f.portfolio.AddTransaction(rebuy))

	// Still falling
	var points []historical.PricePoint
	for date, price := range testingpkg.DailyCloses(testingpkg.Day(2024, time.January, 4), "295", "290") {
		points = append(points, historical.PricePoint{Date: date, Close: price})
	}
	_, err := f.prices.Merge("MSFT", points)
	require.NoError(t, err)

	require.NoError(t, f.job.Run())

	open, err := f.brokerage.GetOpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.OrderTypeSell, open[0].OrderType)
	assert.Equal(t, "MSFT", open[0].Ticker)
	assert.True(t, open[0].Shares.Equal(testingpkg.Dec("5")))
	assert.Equal(t, []string{open[0].ID}, []string{f.trades.OpenOrders()[0].ID})
}

func TestAnalysisJob_NetsEngineInFlightOrders(t *testing.T) {
	f := newJobFixture(t)
	inFlight := testingpkg.NewOrderFixture(t, jan3, domain.OrderTypeSell, "MSFT", "5", "300")
	f.engine.open = []domain.Order{*inFlight}

	open, err := f.job.OpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, inFlight.ID, open[0].ID)

	require.NoError(t, f.job.Run())

	submitted, err := f.brokerage.GetOpenOrders()
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, "AAPL", submitted[0].Ticker)
	assert.True(t, OpenSellShares(submitted, "MSFT").IsZero())
}

func TestAnalysisJob_OpenOrdersListsSharedOrderOnce(t *testing.T) {
	f := newJobFixture(t)
	order := testingpkg.NewOrderFixture(t, jan3, domain.OrderTypeSell, "MSFT", "2", "300")
	require.NoError(t, f.brokerage.SubmitOrders([]*domain.Order{order}))
	f.engine.open = []domain.Order{*order}

	open, err := f.job.OpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, OpenSellShares(open, "MSFT").Equal(testingpkg.Dec("2")))
}

func TestAnalysisJob_RefusesOverlappingRuns(t *testing.T) {
	f := newJobFixture(t)

	f.job.running.Lock()
	assert.ErrorIs(t, f.job.Run(), ErrAlreadyRunning)
	f.job.running.Unlock()

	assert.NoError(t, f.job.Run())
}

func TestAnalysisJob_NothingToDo(t *testing.T) {
	prices := historical.NewMemoryProvider()
	prices.Put(series(t, "FLAT", jan2, "50", "50"))

	brokerage := trading.NewMemoryOrderStore()
	job := NewAnalysisJob(AnalysisJobConfig{
		Analyzer:     NewAnalyzer(24*time.Hour, zerolog.Nop()),
		Portfolio:    newPortfolio(t, "1000"),
		Prices:       prices,
		Trades:       trading.NewTradeManager(brokerage, zerolog.Nop()),
		Clock:        clock.NewFrozen(jan3.Add(16 * time.Hour)),
		LookbackDays: 1,
	}, zerolog.Nop())

	require.NoError(t, job.Run())
	all, err := brokerage.GetAllOrders()
	require.NoError(t, err)
	assert.Empty(t, all)
}
