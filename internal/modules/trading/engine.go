package trading

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/tradesim/internal/clock"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/aristath/tradesim/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrExecutedAfterExpiration is returned when a fill would be dated after the
// order expired
var ErrExecutedAfterExpiration = errors.New("order executed after expiration")

// OrderFilledEvent is delivered to filled observers
type OrderFilledEvent struct {
	Executed    time.Time
	Order       domain.Order
	Transaction domain.Transaction
}

// NewOrderFilledEvent builds the payload, enforcing executed <= expiration
func NewOrderFilledEvent(executed time.Time, order domain.Order, tx domain.Transaction) (OrderFilledEvent, error) {
	if executed.After(order.Expiration) {
		return OrderFilledEvent{}, fmt.Errorf("%w: order %s executed %s, expired %s",
			ErrExecutedAfterExpiration, order.ID, executed.Format(time.RFC3339), order.Expiration.Format(time.RFC3339))
	}
	return OrderFilledEvent{Executed: executed, Order: order, Transaction: tx}, nil
}

// OrderCancelledEvent is delivered to cancelled observers
type OrderCancelledEvent struct {
	Order domain.Order
}

// OrderExpiredEvent is delivered to expired observers
type OrderExpiredEvent struct {
	Expired time.Time
	Order   domain.Order
}

// defaultRetainedOrders is how many terminal orders stay queryable by id
const defaultRetainedOrders = 10000

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithFillDelay makes every worker wait d before filling. Cancel interrupts the wait.
func WithFillDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.fillDelay = d
	}
}

// WithRetainedOrders keeps at most n terminal orders queryable through State,
// Order, Status and Transaction, dropping the oldest first. n <= 0 keeps
// every order. A dropped order id may be submitted again.
func WithRetainedOrders(n int) EngineOption {
	return func(e *Engine) {
		e.retain = n
	}
}

// trackedOrder is the engine's record of one submitted order. state and tx are
// guarded by Engine.mu.
type trackedOrder struct {
	seq       uint64
	order     domain.Order
	status    domain.OrderStatus
	state     domain.OrderState
	tx        *domain.Transaction
	cancelled chan struct{} // closed when Cancel wins
	done      chan struct{} // closed after the terminal observers ran
}

// Engine simulates the lifecycle of orders against an account.
//
// Every accepted order gets its own worker goroutine. State transitions and
// the portfolio append of a fill happen under one mutex, so exactly one of
// fill, cancel and expire wins for each order.
type Engine struct {
	account      Account
	clock        clock.Clock
	safety       *TradeSafetyService
	eventManager *events.Manager
	fillDelay    time.Duration
	retain       int
	log          zerolog.Logger

	mu      sync.Mutex
	orders  map[string]*trackedOrder
	pending map[string]*trackedOrder
	settled []string // terminal order ids, oldest first
	seq     uint64

	nextSubscription atomic.Uint64
	filled           registry[OrderFilledEvent]
	cancelled        registry[OrderCancelledEvent]
	expired          registry[OrderExpiredEvent]
}

// NewEngine creates an order lifecycle engine. A nil clock means real time;
// a nil event manager disables event emission.
func NewEngine(account Account, c clock.Clock, eventManager *events.Manager, log zerolog.Logger, opts ...EngineOption) *Engine {
	if c == nil {
		c = clock.Real{}
	}
	log = log.With().Str("service", "order_engine").Logger()

	e := &Engine{
		account:      account,
		clock:        c,
		safety:       NewTradeSafetyService(account.Features, account.Portfolio, log),
		eventManager: eventManager,
		retain:       defaultRetainedOrders,
		log:          log,
		orders:       make(map[string]*trackedOrder),
		pending:      make(map[string]*trackedOrder),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit validates the order and hands it to a worker. Validation errors are
// returned here and the order never enters the pipeline.
func (e *Engine) Submit(order *domain.Order) (domain.OrderStatus, error) {
	if order == nil {
		return domain.OrderStatus{}, fmt.Errorf("%w: order is nil", ErrInvalidOrder)
	}
	now := e.clock.Now()

	e.mu.Lock()
	if _, exists := e.orders[order.ID]; exists {
		e.mu.Unlock()
		return domain.OrderStatus{}, fmt.Errorf("%w: order %s already submitted", ErrInvalidOrder, order.ID)
	}
	if err := e.safety.ValidateOrder(order, now, e.pendingSharesLocked(order.OrderType, order.Ticker)); err != nil {
		e.mu.Unlock()
		return domain.OrderStatus{}, err
	}

	e.seq++
	t := &trackedOrder{
		seq:   e.seq,
		order: *order,
		status: domain.OrderStatus{
			ID:         uuid.New().String(),
			OrderID:    order.ID,
			Ticker:     order.Ticker,
			Price:      order.Price,
			Shares:     order.Shares,
			OrderType:  order.OrderType,
			SubmitTime: now,
		},
		state:     domain.OrderStateSubmitted,
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
	e.orders[order.ID] = t
	e.pending[order.ID] = t
	e.mu.Unlock()

	e.log.Info().
		Str("order_id", order.ID).
		Str("ticker", order.Ticker).
		Str("order_type", string(order.OrderType)).
		Str("shares", order.Shares.String()).
		Msg("Order submitted")

	e.emit(&events.OrderSubmittedData{
		OrderID:    order.ID,
		StatusID:   t.status.ID,
		Ticker:     order.Ticker,
		OrderType:  string(order.OrderType),
		Shares:     order.Shares,
		Price:      order.Price,
		SubmitTime: now,
	})

	go e.run(t)
	return t.status, nil
}

// Validate runs the submit-time checks without submitting the order
func (e *Engine) Validate(order *domain.Order) error {
	if order == nil {
		return fmt.Errorf("%w: order is nil", ErrInvalidOrder)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.safety.ValidateOrder(order, e.clock.Now(), e.pendingSharesLocked(order.OrderType, order.Ticker))
}

// PriceCheck returns the commission the account would charge for the order
func (e *Engine) PriceCheck(order domain.Order) decimal.Decimal {
	return e.account.Commissions.PriceCheck(order)
}

// pendingSharesLocked sums the shares of still-submitted orders of the same
// type and ticker. Callers hold e.mu.
func (e *Engine) pendingSharesLocked(orderType domain.OrderType, ticker string) decimal.Decimal {
	total := decimal.Zero
	ticker = domain.NormalizeTicker(ticker)
	for _, t := range e.pending {
		if t.state == domain.OrderStateSubmitted && t.order.OrderType == orderType && t.order.Ticker == ticker {
			total = total.Add(t.order.Shares)
		}
	}
	return total
}

func (e *Engine) run(t *trackedOrder) {
	if e.fillDelay > 0 {
		timer := time.NewTimer(e.fillDelay)
		select {
		case <-timer.C:
		case <-t.cancelled:
			timer.Stop()
			return
		}
	}

	now := e.clock.Now()
	if now.After(t.order.Expiration) {
		e.expire(t, now)
		return
	}

	commission := e.account.Commissions.PriceCheck(t.order)
	tx, err := t.order.ToTransaction(now, commission)
	if err != nil {
		e.abort(t, fmt.Sprintf("failed to build transaction: %v", err))
		return
	}

	filled, err := NewOrderFilledEvent(now, t.order, tx)
	if err != nil {
		e.expire(t, now)
		return
	}
	e.fill(t, filled)
}

func (e *Engine) fill(t *trackedOrder, filled OrderFilledEvent) {
	e.mu.Lock()
	if t.state != domain.OrderStateSubmitted {
		e.mu.Unlock()
		return
	}
	if err := e.account.Portfolio.AddTransaction(filled.Transaction); err != nil {
		t.state = domain.OrderStateCancelled
		e.mu.Unlock()

		e.log.Error().Err(err).Str("order_id", t.order.ID).Msg("Failed to record fill, cancelling order")
		e.finishCancelled(t, err.Error())
		return
	}
	t.state = domain.OrderStateFilled
	t.tx = &filled.Transaction
	e.mu.Unlock()

	e.log.Info().
		Str("order_id", t.order.ID).
		Str("ticker", t.order.Ticker).
		Str("commission", filled.Transaction.Commission.String()).
		Time("executed", filled.Executed).
		Msg("Order filled")

	e.filled.notify(filled, e.observerPanicked)
	e.emit(&events.OrderFilledData{
		OrderID:    t.order.ID,
		Ticker:     t.order.Ticker,
		OrderType:  string(t.order.OrderType),
		Shares:     filled.Transaction.Shares,
		Price:      filled.Transaction.Price,
		Commission: filled.Transaction.Commission,
		Executed:   filled.Executed,
	})
	e.finish(t)
}

func (e *Engine) expire(t *trackedOrder, now time.Time) {
	e.mu.Lock()
	if t.state != domain.OrderStateSubmitted {
		e.mu.Unlock()
		return
	}
	t.state = domain.OrderStateExpired
	e.mu.Unlock()

	e.log.Info().Str("order_id", t.order.ID).Time("expiration", t.order.Expiration).Msg("Order expired")

	e.expired.notify(OrderExpiredEvent{Expired: now, Order: t.order}, e.observerPanicked)
	e.emit(&events.OrderExpiredData{
		OrderID:    t.order.ID,
		Ticker:     t.order.Ticker,
		Expiration: t.order.Expiration,
		Expired:    now,
	})
	e.finish(t)
}

// abort ends an order that could not be filled
func (e *Engine) abort(t *trackedOrder, reason string) {
	e.mu.Lock()
	if t.state != domain.OrderStateSubmitted {
		e.mu.Unlock()
		return
	}
	t.state = domain.OrderStateCancelled
	e.mu.Unlock()

	e.log.Error().Str("order_id", t.order.ID).Str("reason", reason).Msg("Order aborted")
	e.finishCancelled(t, reason)
}

// Cancel cancels a submitted order. Unknown and already terminal orders are
// ignored. Returns true if this call cancelled the order.
func (e *Engine) Cancel(orderID string) bool {
	e.mu.Lock()
	t, ok := e.orders[orderID]
	if !ok || t.state != domain.OrderStateSubmitted {
		e.mu.Unlock()
		return false
	}
	t.state = domain.OrderStateCancelled
	close(t.cancelled)
	e.mu.Unlock()

	e.log.Info().Str("order_id", orderID).Msg("Order cancelled")
	e.finishCancelled(t, "")
	return true
}

func (e *Engine) finishCancelled(t *trackedOrder, reason string) {
	e.cancelled.notify(OrderCancelledEvent{Order: t.order}, e.observerPanicked)
	e.emit(&events.OrderCancelledData{
		OrderID: t.order.ID,
		Ticker:  t.order.Ticker,
		Reason:  reason,
	})
	e.finish(t)
}

// finish releases WaitAll callers once the terminal observers have run and
// evicts the oldest terminal orders beyond the retention limit
func (e *Engine) finish(t *trackedOrder) {
	e.mu.Lock()
	delete(e.pending, t.order.ID)
	if e.retain > 0 {
		e.settled = append(e.settled, t.order.ID)
		for len(e.settled) > e.retain {
			delete(e.orders, e.settled[0])
			e.settled = e.settled[1:]
		}
	}
	e.mu.Unlock()
	close(t.done)
}

// WaitAll blocks until every order submitted before the call is terminal and
// its observers have run, or ctx is done.
func (e *Engine) WaitAll(ctx context.Context) error {
	e.mu.Lock()
	waiting := make([]<-chan struct{}, 0, len(e.pending))
	for _, t := range e.pending {
		waiting = append(waiting, t.done)
	}
	e.mu.Unlock()

	for _, done := range waiting {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// GetOpenOrders returns the orders still in SUBMITTED state, in submission order
func (e *Engine) GetOpenOrders() []domain.Order {
	e.mu.Lock()
	open := make([]*trackedOrder, 0, len(e.pending))
	for _, t := range e.pending {
		if t.state == domain.OrderStateSubmitted {
			open = append(open, t)
		}
	}
	e.mu.Unlock()

	sort.Slice(open, func(i, j int) bool {
		return open[i].seq < open[j].seq
	})
	orders := make([]domain.Order, len(open))
	for i, t := range open {
		orders[i] = t.order
	}
	return orders
}

// State returns the order's lifecycle state
func (e *Engine) State(orderID string) (domain.OrderState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.orders[orderID]
	if !ok {
		return "", false
	}
	return t.state, true
}

// Order returns a submitted order by id
func (e *Engine) Order(orderID string) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return t.order, true
}

// Status returns the snapshot issued when the order was accepted
func (e *Engine) Status(orderID string) (domain.OrderStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.orders[orderID]
	if !ok {
		return domain.OrderStatus{}, false
	}
	return t.status, true
}

// Transaction returns the transaction a filled order produced
func (e *Engine) Transaction(orderID string) (domain.Transaction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.orders[orderID]
	if !ok || t.tx == nil {
		return domain.Transaction{}, false
	}
	return *t.tx, true
}

// OnFilled registers a filled observer
func (e *Engine) OnFilled(fn func(OrderFilledEvent)) SubscriptionID {
	id := SubscriptionID(e.nextSubscription.Add(1))
	e.filled.add(id, fn)
	return id
}

// OnCancelled registers a cancelled observer
func (e *Engine) OnCancelled(fn func(OrderCancelledEvent)) SubscriptionID {
	id := SubscriptionID(e.nextSubscription.Add(1))
	e.cancelled.add(id, fn)
	return id
}

// OnExpired registers an expired observer
func (e *Engine) OnExpired(fn func(OrderExpiredEvent)) SubscriptionID {
	id := SubscriptionID(e.nextSubscription.Add(1))
	e.expired.add(id, fn)
	return id
}

// Unsubscribe removes an observer. Returns false for unknown ids.
func (e *Engine) Unsubscribe(id SubscriptionID) bool {
	return e.filled.remove(id) || e.cancelled.remove(id) || e.expired.remove(id)
}

// ObserverCount returns the number of registered observers of every kind
func (e *Engine) ObserverCount() int {
	return e.filled.count() + e.cancelled.count() + e.expired.count()
}

func (e *Engine) observerPanicked(p any) {
	e.log.Error().Interface("panic", p).Msg("Order observer panicked")
}

func (e *Engine) emit(data events.EventData) {
	if e.eventManager == nil {
		return
	}
	e.eventManager.EmitTyped("trading", data)
}
