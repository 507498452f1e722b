package testing

import (
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockOrderStore is a mock brokerage order store for testing
type MockOrderStore struct {
	mock.Mock
}

// NewMockOrderStore creates a new mock order store
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{}
}

func (m *MockOrderStore) SubmitOrders(orders []*domain.Order) error {
	args := m.Called(orders)
	return args.Error(0)
}

func (m *MockOrderStore) CancelOrder(order *domain.Order) error {
	args := m.Called(order)
	return args.Error(0)
}

func (m *MockOrderStore) GetOpenOrders() ([]*domain.Order, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *MockOrderStore) GetAllOrders() ([]*domain.Order, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Order), args.Error(1)
}

func (m *MockOrderStore) GetTransactions(from, to time.Time) ([]domain.Transaction, error) {
	args := m.Called(from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}
