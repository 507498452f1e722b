package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/portfolio"
	"github.com/aristath/tradesim/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var handlerNow = time.Date(2024, time.June, 3, 14, 0, 0, 0, time.UTC)

type fixture struct {
	router    *chi.Mux
	engine    *trading.Engine
	store     *trading.MemoryOrderStore
	portfolio *portfolio.Portfolio
	bus       *events.Bus
}

func setupRouter(t *testing.T, opts ...trading.EngineOption) *fixture {
	t.Helper()
	c := clock.NewFrozen(handlerNow)
	p := portfolio.NewPortfolio(c)
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	engine := trading.NewEngine(trading.Account{
		Features:    trading.CashAccountFeatures(),
		Commissions: trading.FlatCommission{Amount: decimal.RequireFromString("1.50")},
		Portfolio:   p,
	}, c, manager, zerolog.Nop(), opts...)
	store := trading.NewMemoryOrderStore()
	handler := NewTradingHandlers(engine, trading.NewTradeManager(store, zerolog.Nop()), manager, c, 24*time.Hour, zerolog.Nop())

	router := chi.NewRouter()
	require.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")
	return &fixture{router: router, engine: engine, store: store, portfolio: p, bus: bus}
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterRoutes(t *testing.T) {
	f := setupRouter(t)

	testCases := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/orders", http.StatusOK},
		{"POST", "/orders/wait", http.StatusOK},
		{"GET", "/orders/missing", http.StatusNotFound},
		{"DELETE", "/orders/missing", http.StatusOK},
		{"GET", "/brokerage/orders", http.StatusOK},
		{"GET", "/brokerage/orders?all=true", http.StatusOK},
		{"POST", "/brokerage/refresh", http.StatusOK},
		{"GET", "/brokerage/transactions", http.StatusOK},
		{"DELETE", "/brokerage/orders/missing", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := do(f.router, tc.method, tc.path, "")
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSubmitOrder_FillsAndReports(t *testing.T) {
	f := setupRouter(t)

	rec := do(f.router, "POST", "/orders", `{"order_type":"BUY","ticker":"aapl","shares":"2","price":"100"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var status domain.OrderStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "AAPL", status.Ticker)
	assert.NotEmpty(t, status.OrderID)

	rec = do(f.router, "POST", "/orders/wait?timeout=5s", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(f.router, "GET", "/orders/"+status.OrderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.OrderStateFilled, resp.State)
	require.NotNil(t, resp.Transaction)
	assert.True(t, resp.Transaction.Commission.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, resp.Order.Expiration.Equal(handlerNow.Add(24*time.Hour)))

	assert.True(t, f.portfolio.GetPosition("AAPL").Shares(handlerNow).Equal(decimal.NewFromInt(2)))
}

func TestSubmitOrder_Rejections(t *testing.T) {
	f := setupRouter(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"unknown order type", `{"order_type":"HOLD","ticker":"AAPL","shares":"1","price":"1"}`, http.StatusBadRequest},
		{"zero shares", `{"order_type":"BUY","ticker":"AAPL","shares":"0","price":"1"}`, http.StatusBadRequest},
		{"unsupported type", `{"order_type":"SELL_SHORT","ticker":"AAPL","shares":"1","price":"1"}`, http.StatusUnprocessableEntity},
		{"sell without position", `{"order_type":"SELL","ticker":"AAPL","shares":"1","price":"1"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(f.router, "POST", "/orders", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCancelOrder(t *testing.T) {
	f := setupRouter(t, trading.WithFillDelay(time.Hour))

	rec := do(f.router, "POST", "/orders", `{"order_type":"BUY","ticker":"MSFT","shares":"1","price":"300"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var status domain.OrderStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))

	rec = do(f.router, "GET", "/orders", "")
	var open []domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	require.Len(t, open, 1)

	rec = do(f.router, "DELETE", "/orders/"+status.OrderID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["cancelled"])
	assert.Equal(t, string(domain.OrderStateCancelled), body["state"])

	rec = do(f.router, "DELETE", "/orders/"+status.OrderID, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["cancelled"])
}

func TestWaitAll_TimesOut(t *testing.T) {
	f := setupRouter(t, trading.WithFillDelay(time.Hour))
	rec := do(f.router, "POST", "/orders", `{"order_type":"BUY","ticker":"MSFT","shares":"1","price":"300"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(f.router, "POST", "/orders/wait?timeout=10ms", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = do(f.router, "POST", "/orders/wait?timeout=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, order := range f.engine.GetOpenOrders() {
		f.engine.Cancel(order.ID)
	}
}

func TestValidateAndCommission(t *testing.T) {
	f := setupRouter(t)

	rec := do(f.router, "POST", "/orders/validate", `{"order_type":"SELL","ticker":"AAPL","shares":"1","price":"1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, false, result["valid"])
	assert.Contains(t, result["reason"], "no position")

	rec = do(f.router, "POST", "/orders/commission", `{"order_type":"BUY","ticker":"AAPL","shares":"3","price":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "1.5", result["commission"])
	assert.Equal(t, "31.5", result["total"])
	assert.Empty(t, f.engine.GetOpenOrders(), "validation never submits")
}

func TestBrokerageFlow(t *testing.T) {
	f := setupRouter(t)

	var submitted []*events.Event
	f.bus.Subscribe(events.BrokerageOrdersSubmitted, func(event *events.Event) { submitted = append(submitted, event) })

	body := `[
		{"issued":"2024-06-01T10:00:00Z","order_type":"BUY","ticker":"AAPL","shares":"1","price":"190"},
		{"order_type":"BUY","ticker":"MSFT","shares":"2","price":"420"}
	]`
	rec := do(f.router, "POST", "/brokerage/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, submitted, 1)
	assert.EqualValues(t, 2, submitted[0].Data["count"])

	rec = do(f.router, "GET", "/brokerage/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []domain.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "AAPL", txs[0].Ticker)
	assert.True(t, txs[0].SettlementDate.Equal(time.Date(2024, time.June, 2, 10, 0, 0, 0, time.UTC)))

	open, err := f.store.GetOpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)

	rec = do(f.router, "DELETE", "/brokerage/orders/"+open[0].ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, true, result["cancelled"])

	rec = do(f.router, "GET", "/brokerage/orders?all=true", "")
	var all []domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "MSFT", all[0].Ticker)
}
