package trading

import (
	"sync"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
)

// conversionAge is how long an order must have been open before
// GetTransactions turns it into a transaction
const conversionAge = 24 * time.Hour

// OrderStore is the brokerage-side open order registry used for batch
// backtesting. It has no fill or validation semantics of its own.
type OrderStore interface {
	// SubmitOrders appends orders to the open set. Ids already known are ignored.
	SubmitOrders(orders []*domain.Order) error
	// CancelOrder removes an open order. Unknown orders are ignored.
	CancelOrder(order *domain.Order) error
	// GetOpenOrders returns the open set in submission order
	GetOpenOrders() ([]*domain.Order, error)
	// GetAllOrders returns the open set followed by every cancelled order
	GetAllOrders() ([]*domain.Order, error)
	// GetTransactions converts open orders issued more than a day before to
	GetTransactions(from, to time.Time) ([]domain.Transaction, error)
}

// isConvertible reports whether an order issued at issued has aged enough by to
func isConvertible(issued, to time.Time) bool {
	return issued.Before(to.Add(-conversionAge))
}

// conversionTransaction settles an order the day after issue at its own
// price with no commission
func conversionTransaction(order *domain.Order) (domain.Transaction, error) {
	return order.ToTransaction(order.Issued.AddDate(0, 0, 1), decimal.Zero)
}

// MemoryOrderStore is an in-memory OrderStore
type MemoryOrderStore struct {
	mu        sync.Mutex
	open      []*domain.Order
	cancelled []*domain.Order
	seen      map[string]bool
}

// NewMemoryOrderStore creates an empty store
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{seen: make(map[string]bool)}
}

func (s *MemoryOrderStore) SubmitOrders(orders []*domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, order := range orders {
		if order == nil || s.seen[order.ID] {
			continue
		}
		s.seen[order.ID] = true
		s.open = append(s.open, order)
	}
	return nil
}

func (s *MemoryOrderStore) CancelOrder(order *domain.Order) error {
	if order == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, open := range s.open {
		if open.ID == order.ID {
			s.open = append(s.open[:i:i], s.open[i+1:]...)
			s.cancelled = append(s.cancelled, open)
			return nil
		}
	}
	return nil
}

func (s *MemoryOrderStore) GetOpenOrders() ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	open := make([]*domain.Order, len(s.open))
	copy(open, s.open)
	return open, nil
}

func (s *MemoryOrderStore) GetAllOrders() ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*domain.Order, 0, len(s.open)+len(s.cancelled))
	all = append(all, s.open...)
	all = append(all, s.cancelled...)
	return all, nil
}

// GetTransactions converts aged open orders. from is accepted for interface
// symmetry; orders issued before it are still converted.
func (s *MemoryOrderStore) GetTransactions(from, to time.Time) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]domain.Transaction, 0)
	remaining := make([]*domain.Order, 0, len(s.open))
	for _, order := range s.open {
		if !isConvertible(order.Issued, to) {
			remaining = append(remaining, order)
			continue
		}
		tx, err := conversionTransaction(order)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	s.open = remaining
	return txs, nil
}
