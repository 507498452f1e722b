package trading

import (
	"fmt"
	"sync"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/rs/zerolog"
)

// TradeManager tracks orders locally and forwards them to a brokerage store
type TradeManager struct {
	brokerage OrderStore
	log       zerolog.Logger

	mu    sync.Mutex
	open  []*domain.Order
	known map[string]bool
}

// NewTradeManager creates a trade manager over a brokerage store
func NewTradeManager(brokerage OrderStore, log zerolog.Logger) *TradeManager {
	return &TradeManager{
		brokerage: brokerage,
		log:       log.With().Str("service", "trade_manager").Logger(),
		known:     make(map[string]bool),
	}
}

// Brokerage returns the store orders are forwarded to
func (m *TradeManager) Brokerage() OrderStore {
	return m.brokerage
}

// SubmitOrders forwards orders to the brokerage and tracks them locally.
// Nothing is tracked when the brokerage rejects the batch.
func (m *TradeManager) SubmitOrders(orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	if err := m.brokerage.SubmitOrders(orders); err != nil {
		return fmt.Errorf("failed to submit orders to brokerage: %w", err)
	}

	m.mu.Lock()
	added := m.mergeLocked(orders)
	m.mu.Unlock()

	m.log.Info().Int("submitted", len(orders)).Int("tracked", added).Msg("Orders submitted")
	return nil
}

// CancelOrder cancels at the brokerage and stops tracking the order
func (m *TradeManager) CancelOrder(order *domain.Order) error {
	if order == nil {
		return nil
	}
	if err := m.brokerage.CancelOrder(order); err != nil {
		return fmt.Errorf("failed to cancel order %s at brokerage: %w", order.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, open := range m.open {
		if open.ID == order.ID {
			m.open = append(m.open[:i:i], m.open[i+1:]...)
			delete(m.known, order.ID)
			break
		}
	}
	return nil
}

// OpenOrders returns the locally tracked open orders
func (m *TradeManager) OpenOrders() []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := make([]*domain.Order, len(m.open))
	copy(open, m.open)
	return open
}

// RefreshFromBrokerage reconciles the local list with the brokerage's open
// orders. Orders the brokerage no longer reports as open (converted or
// cancelled there) stop being tracked; new ones are added once.
func (m *TradeManager) RefreshFromBrokerage() error {
	remote, err := m.brokerage.GetOpenOrders()
	if err != nil {
		return fmt.Errorf("failed to refresh from brokerage: %w", err)
	}

	m.mu.Lock()
	dropped := m.retainLocked(remote)
	added := m.mergeLocked(remote)
	total := len(m.open)
	m.mu.Unlock()

	m.log.Debug().
		Int("added", added).
		Int("dropped", dropped).
		Int("open", total).
		Msg("Refreshed open orders from brokerage")
	return nil
}

// retainLocked keeps only the tracked orders present in remote
func (m *TradeManager) retainLocked(remote []*domain.Order) int {
	open := make(map[string]bool, len(remote))
	for _, order := range remote {
		if order != nil {
			open[order.ID] = true
		}
	}

	kept := m.open[:0:0]
	for _, order := range m.open {
		if open[order.ID] {
			kept = append(kept, order)
			continue
		}
		delete(m.known, order.ID)
	}
	dropped := len(m.open) - len(kept)
	m.open = kept
	return dropped
}

func (m *TradeManager) mergeLocked(orders []*domain.Order) int {
	added := 0
	for _, order := range orders {
		if order == nil || m.known[order.ID] {
			continue
		}
		m.known[order.ID] = true
		m.open = append(m.open, order)
		added++
	}
	return added
}
