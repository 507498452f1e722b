package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/modules/analysis"
	"github.com/aristath/tradesim/internal/modules/historical"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/aristath/tradesim/internal/modules/trading"
	testingpkg "github.com/aristath/tradesim/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var previewNow = time.Date(2024, time.January, 4, 16, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T) (*chi.Mux, *trading.MemoryOrderStore) {
	t.Helper()

	start := testingpkg.Day(2024, time.January, 2)
	var points []historical.PricePoint
	for date, price := range testingpkg.DailyCloses(start, "100", "90", "110") {
		points = append(points, historical.PricePoint{Date: date, Close: price})
	}
	series, err := historical.NewPriceSeries("AAPL", points)
	require.NoError(t, err)

	prices := historical.NewMemoryProvider()
	prices.Put(series)

	p := portfolio.NewPortfolio(clock.NewFrozen(start))
	deposit := testingpkg.NewTransactionFixture(t, start.AddDate(0, 0, -1), domain.OrderTypeDeposit, "", "500", "0", "0")
	require.NoError(t, p.AddTransaction(deposit))

	brokerage := trading.NewMemoryOrderStore()
	trades := trading.NewTradeManager(brokerage, zerolog.Nop())
	analyzer := analysis.NewAnalyzer(24*time.Hour, zerolog.Nop())
	job := analysis.NewAnalysisJob(analysis.AnalysisJobConfig{
		Analyzer:     analyzer,
		Portfolio:    p,
		Prices:       prices,
		Trades:       trades,
		Clock:        clock.NewFrozen(previewNow),
		LookbackDays: 1,
	}, zerolog.Nop())

	handler := NewHandler(analyzer, job, p, prices, zerolog.Nop())
	router := chi.NewRouter()
	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")
	return router, brokerage
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlePreview(t *testing.T) {
	router, brokerage := setupRouter(t)

	rec := get(router, "/analysis/aapl?start=2024-01-02&end=2024-01-04")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AAPL", body.Ticker)
	require.NotNil(t, body.Momentum)
	assert.InDelta(t, 10.0, *body.Momentum, 1e-9)
	require.Len(t, body.Orders, 1)
	assert.Equal(t, domain.OrderTypeBuy, body.Orders[0].OrderType)
	assert.True(t, body.Orders[0].Price.Equal(testingpkg.Dec("110")))

	// Nothing is submitted
	open, err := brokerage.GetOpenOrders()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestHandlePreview_FallingWithoutPosition(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(router, "/analysis/AAPL?start=2024-01-02&end=2024-01-03")
	require.Equal(t, http.StatusOK, rec.Code)

	var body PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Momentum)
	assert.InDelta(t, -10.0, *body.Momentum, 1e-9)
	assert.Empty(t, body.Orders)
}

func TestHandlePreview_Errors(t *testing.T) {
	router, _ := setupRouter(t)

	assert.Equal(t, http.StatusNotFound, get(router, "/analysis/MSFT").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/analysis/AAPL?start=soon").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/analysis/AAPL?start=2024-01-04&end=2024-01-02").Code)
}

func TestHandlePreview_DefaultWindowUsesJobClock(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(router, "/analysis/AAPL")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body PreviewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Start.Equal(testingpkg.Day(2024, time.January, 3)), "start %s", body.Start)
	assert.True(t, body.End.Equal(previewNow), "end %s", body.End)
	require.NotNil(t, body.Momentum)
	assert.InDelta(t, 20.0, *body.Momentum, 1e-9)
}
