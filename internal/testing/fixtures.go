package testing

import (
	"testing"
	"time"

	"github.com/aristath/tradesim/internal/domain"
	"github.com/shopspring/decimal"
)

// Day returns midnight UTC of the given date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Dec parses a decimal literal, panicking on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// NewOrderFixture creates a valid order issued at issued and expiring a day later
func NewOrderFixture(t *testing.T, issued time.Time, orderType domain.OrderType, ticker, shares, price string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(issued, issued.Add(24*time.Hour), orderType, ticker, Dec(shares), Dec(price))
	if err != nil {
		t.Fatalf("Failed to create order fixture: %v", err)
	}
	return order
}

// NewTransactionFixture creates a share or cash transaction
func NewTransactionFixture(t *testing.T, date time.Time, orderType domain.OrderType, ticker, price, shares, commission string) domain.Transaction {
	t.Helper()
	tx, err := domain.NewTransaction(date, orderType, ticker, Dec(price), Dec(shares), Dec(commission))
	if err != nil {
		t.Fatalf("Failed to create transaction fixture: %v", err)
	}
	return tx
}

// DailyCloses returns one close per calendar day starting at start
func DailyCloses(start time.Time, closes ...string) map[time.Time]decimal.Decimal {
	points := make(map[time.Time]decimal.Decimal, len(closes))
	for i, c := range closes {
		points[start.AddDate(0, 0, i)] = Dec(c)
	}
	return points
}
