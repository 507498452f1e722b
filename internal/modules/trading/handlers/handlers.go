// Package handlers provides HTTP handlers for order submission and the brokerage order store.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/events"
	"github.com/aristath/tradesim/internal/modules/trading"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultWaitTimeout bounds POST /orders/wait when no timeout is given
const defaultWaitTimeout = 30 * time.Second

// TradingHandlers contains HTTP handlers for trading API
type TradingHandlers struct {
	engine        *trading.Engine
	tradeManager  *trading.TradeManager
	eventManager  *events.Manager
	clock         clock.Clock
	orderLifetime time.Duration
	log           zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance.
// orderLifetime is the expiration used when a request gives none.
func NewTradingHandlers(
	engine *trading.Engine,
	tradeManager *trading.TradeManager,
	eventManager *events.Manager,
	c clock.Clock,
	orderLifetime time.Duration,
	log zerolog.Logger,
) *TradingHandlers {
	return &TradingHandlers{
		engine:        engine,
		tradeManager:  tradeManager,
		eventManager:  eventManager,
		clock:         c,
		orderLifetime: orderLifetime,
		log:           log.With().Str("handler", "trading").Logger(),
	}
}

// OrderRequest is the body of every order endpoint. Issued defaults to now
// and Expiration to Issued plus the configured order lifetime.
type OrderRequest struct {
	Issued     *time.Time      `json:"issued,omitempty"`
	Expiration *time.Time      `json:"expiration,omitempty"`
	OrderType  string          `json:"order_type"`
	Ticker     string          `json:"ticker"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
}

// OrderResponse describes an order the engine knows about
type OrderResponse struct {
	Order       domain.Order        `json:"order"`
	State       domain.OrderState   `json:"state"`
	Status      domain.OrderStatus  `json:"status"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

func (h *TradingHandlers) buildOrder(req OrderRequest) (*domain.Order, error) {
	orderType, err := domain.OrderTypeFromString(req.OrderType)
	if err != nil {
		return nil, err
	}

	issued := h.clock.Now()
	if req.Issued != nil {
		issued = *req.Issued
	}
	expiration := issued.Add(h.orderLifetime)
	if req.Expiration != nil {
		expiration = *req.Expiration
	}

	return domain.NewOrder(issued, expiration, orderType, req.Ticker, req.Shares, req.Price)
}

func (h *TradingHandlers) decodeOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	order, err := h.buildOrder(req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return order, true
}

// HandleSubmitOrder submits an order to the lifecycle engine
func (h *TradingHandlers) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.decodeOrder(w, r)
	if !ok {
		return
	}

	status, err := h.engine.Submit(order)
	if err != nil {
		h.writeError(w, validationStatus(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, status)
}

// HandleValidateOrder runs the submit-time checks without submitting
func (h *TradingHandlers) HandleValidateOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.decodeOrder(w, r)
	if !ok {
		return
	}

	if err := h.engine.Validate(order); err != nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"valid":  false,
			"reason": err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// HandleCalculateCommission prices an order against the account's schedule
func (h *TradingHandlers) HandleCalculateCommission(w http.ResponseWriter, r *http.Request) {
	order, ok := h.decodeOrder(w, r)
	if !ok {
		return
	}

	commission := h.engine.PriceCheck(*order)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":     order.Ticker,
		"shares":     order.Shares,
		"commission": commission,
		"total":      order.Price.Mul(order.Shares).Add(commission),
	})
}

// HandleGetOpenOrders returns the orders still waiting to fill
func (h *TradingHandlers) HandleGetOpenOrders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.GetOpenOrders())
}

// HandleGetOrder returns one order with its state and fill
func (h *TradingHandlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, ok := h.engine.Order(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("order %s not found", id))
		return
	}
	state, _ := h.engine.State(id)
	status, _ := h.engine.Status(id)

	resp := OrderResponse{Order: order, State: state, Status: status}
	if tx, ok := h.engine.Transaction(id); ok {
		resp.Transaction = &tx
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleCancelOrder cancels an order. Unknown and finished orders are not errors.
func (h *TradingHandlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled := h.engine.Cancel(id)
	state, _ := h.engine.State(id)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":  id,
		"cancelled": cancelled,
		"state":     state,
	})
}

// HandleWaitAll blocks until every submitted order is terminal or
// ?timeout= (a Go duration) elapses
func (h *TradingHandlers) HandleWaitAll(w http.ResponseWriter, r *http.Request) {
	timeout := defaultWaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout %q", raw))
			return
		}
		timeout = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	if err := h.engine.WaitAll(ctx); err != nil {
		h.writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("orders still open: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"drained":     true,
		"open_orders": len(h.engine.GetOpenOrders()),
		"waited_ms":   time.Since(start).Milliseconds(),
	})
}

// HandleGetBrokerageOrders returns the trade manager's open orders, or the
// brokerage's full audit history with ?all=true
func (h *TradingHandlers) HandleGetBrokerageOrders(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	if !all {
		h.writeJSON(w, http.StatusOK, h.tradeManager.OpenOrders())
		return
	}

	orders, err := h.tradeManager.Brokerage().GetAllOrders()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get brokerage orders")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// HandleSubmitBrokerageOrders submits a batch of orders to the brokerage store
func (h *TradingHandlers) HandleSubmitBrokerageOrders(w http.ResponseWriter, r *http.Request) {
	var reqs []OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	orders := make([]*domain.Order, 0, len(reqs))
	for i, req := range reqs {
		order, err := h.buildOrder(req)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("order %d: %v", i, err))
			return
		}
		orders = append(orders, order)
	}

	if err := h.tradeManager.SubmitOrders(orders); err != nil {
		h.log.Error().Err(err).Msg("Failed to submit brokerage orders")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.emitBrokerage(events.BrokerageOrdersSubmitted, orders)
	h.writeJSON(w, http.StatusCreated, orders)
}

// HandleCancelBrokerageOrder cancels a tracked brokerage order by id
func (h *TradingHandlers) HandleCancelBrokerageOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, order := range h.tradeManager.OpenOrders() {
		if order.ID != id {
			continue
		}
		if err := h.tradeManager.CancelOrder(order); err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"order_id": id, "cancelled": true})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order_id": id, "cancelled": false})
}

// HandleRefreshBrokerage merges the brokerage's open orders into the trade manager
func (h *TradingHandlers) HandleRefreshBrokerage(w http.ResponseWriter, r *http.Request) {
	if err := h.tradeManager.RefreshFromBrokerage(); err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, h.tradeManager.OpenOrders())
}

// HandleGetBrokerageTransactions converts aged open orders up to ?to= (default now)
func (h *TradingHandlers) HandleGetBrokerageTransactions(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()
	from, err := parseTime(r.URL.Query().Get("from"), time.Time{})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"), now)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.tradeManager.Brokerage().GetTransactions(from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to convert brokerage orders")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(txs) > 0 && h.eventManager != nil {
		h.eventManager.EmitTyped("trading", &events.BrokerageOrdersData{
			Type:  events.BrokerageOrdersConverted,
			Count: len(txs),
		})
	}
	h.writeJSON(w, http.StatusOK, txs)
}

func (h *TradingHandlers) emitBrokerage(eventType events.EventType, orders []*domain.Order) {
	if h.eventManager == nil {
		return
	}
	ids := make([]string, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	h.eventManager.EmitTyped("trading", &events.BrokerageOrdersData{
		Type:     eventType,
		Count:    len(orders),
		OrderIDs: ids,
	})
}

func validationStatus(err error) int {
	if errors.Is(err, trading.ErrUnsupportedOrderType) || errors.Is(err, trading.ErrInvalidOrder) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// parseTime accepts YYYY-MM-DD or RFC3339; empty means fallback
func parseTime(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected YYYY-MM-DD or RFC3339", value)
	}
	return t, nil
}

func (h *TradingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *TradingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
