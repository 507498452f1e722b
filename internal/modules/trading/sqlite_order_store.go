package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/tradesim/internal/database"
	"github.com/aristath/tradesim/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	orderStatusOpen      = "open"
	orderStatusCancelled = "cancelled"
	orderStatusConverted = "converted"
)

// orderRecord is the msgpack payload stored for each order.
// Decimals are kept as strings so no precision is lost.
type orderRecord struct {
	ID         string `msgpack:"id"`
	Issued     int64  `msgpack:"issued"`
	Expiration int64  `msgpack:"expiration"`
	OrderType  string `msgpack:"order_type"`
	Ticker     string `msgpack:"ticker"`
	Shares     string `msgpack:"shares"`
	Price      string `msgpack:"price"`
}

func newOrderRecord(order *domain.Order) orderRecord {
	return orderRecord{
		ID:         order.ID,
		Issued:     order.Issued.UnixNano(),
		Expiration: order.Expiration.UnixNano(),
		OrderType:  string(order.OrderType),
		Ticker:     order.Ticker,
		Shares:     order.Shares.String(),
		Price:      order.Price.String(),
	}
}

func (r orderRecord) toOrder() (*domain.Order, error) {
	shares, err := decimal.NewFromString(r.Shares)
	if err != nil {
		return nil, fmt.Errorf("failed to parse shares of order %s: %w", r.ID, err)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price of order %s: %w", r.ID, err)
	}
	return &domain.Order{
		ID:         r.ID,
		Issued:     time.Unix(0, r.Issued).UTC(),
		Expiration: time.Unix(0, r.Expiration).UTC(),
		OrderType:  domain.OrderType(r.OrderType),
		Ticker:     r.Ticker,
		Shares:     shares,
		Price:      price,
	}, nil
}

// SQLiteOrderStore is a durable OrderStore backed by the orders table.
// Cancelled and converted orders stay in the table with their status.
type SQLiteOrderStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSQLiteOrderStore creates an order store over a migrated "orders" database
func NewSQLiteOrderStore(db *database.DB, log zerolog.Logger) *SQLiteOrderStore {
	return &SQLiteOrderStore{
		db:  db,
		log: log.With().Str("repo", "order_store").Logger(),
	}
}

func (s *SQLiteOrderStore) SubmitOrders(orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	inserted := 0
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		var seq int64
		if err := tx.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM orders").Scan(&seq); err != nil {
			return fmt.Errorf("failed to read order sequence: %w", err)
		}

		now := time.Now().UnixNano()
		for _, order := range orders {
			if order == nil {
				continue
			}
			payload, err := msgpack.Marshal(newOrderRecord(order))
			if err != nil {
				return fmt.Errorf("failed to encode order %s: %w", order.ID, err)
			}

			result, err := tx.Exec(`
				INSERT OR IGNORE INTO orders
				(id, seq, ticker, order_type, issued, status, payload, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, order.ID, seq+1, order.Ticker, string(order.OrderType), order.Issued.UnixNano(),
				orderStatusOpen, payload, now)
			if err != nil {
				return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
			}

			if n, _ := result.RowsAffected(); n > 0 {
				seq++
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to submit orders: %w", err)
	}

	s.log.Debug().Int("submitted", len(orders)).Int("inserted", inserted).Msg("Orders stored")
	return nil
}

func (s *SQLiteOrderStore) CancelOrder(order *domain.Order) error {
	if order == nil {
		return nil
	}

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			orderStatusCancelled, time.Now().UnixNano(), order.ID, orderStatusOpen,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", order.ID, err)
	}
	return nil
}

func (s *SQLiteOrderStore) GetOpenOrders() ([]*domain.Order, error) {
	orders, err := s.queryOrders(s.db.Conn(),
		"SELECT payload FROM orders WHERE status = ? ORDER BY seq", orderStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	return orders, nil
}

func (s *SQLiteOrderStore) GetAllOrders() ([]*domain.Order, error) {
	var all []*domain.Order
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		open, err := s.queryOrders(tx,
			"SELECT payload FROM orders WHERE status = ? ORDER BY seq", orderStatusOpen)
		if err != nil {
			return err
		}
		cancelled, err := s.queryOrders(tx,
			"SELECT payload FROM orders WHERE status = ? ORDER BY updated_at, seq", orderStatusCancelled)
		if err != nil {
			return err
		}
		all = make([]*domain.Order, 0, len(open)+len(cancelled))
		all = append(all, open...)
		all = append(all, cancelled...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get all orders: %w", err)
	}
	return all, nil
}

// GetTransactions converts aged open orders and marks them converted in the
// same SQL transaction, so no order is ever converted twice. from is not a
// lower bound.
func (s *SQLiteOrderStore) GetTransactions(from, to time.Time) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0)
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		// issued < to-24h, the same predicate as isConvertible
		cutoff := to.Add(-conversionAge).UnixNano()
		orders, err := s.queryOrders(tx,
			"SELECT payload FROM orders WHERE status = ? AND issued < ? ORDER BY seq", orderStatusOpen, cutoff)
		if err != nil {
			return err
		}

		now := time.Now().UnixNano()
		for _, order := range orders {
			transaction, err := conversionTransaction(order)
			if err != nil {
				return err
			}
			if _, err := tx.Exec("UPDATE orders SET status = ?, updated_at = ? WHERE id = ?",
				orderStatusConverted, now, order.ID); err != nil {
				return fmt.Errorf("failed to mark order %s converted: %w", order.ID, err)
			}
			txs = append(txs, transaction)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	if len(txs) > 0 {
		s.log.Info().Int("count", len(txs)).Time("to", to).Msg("Converted open orders to transactions")
	}
	return txs, nil
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteOrderStore) queryOrders(q querier, query string, args ...any) ([]*domain.Order, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		var record orderRecord
		if err := msgpack.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("failed to decode order payload: %w", err)
		}
		order, err := record.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return orders, nil
}
