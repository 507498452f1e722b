// Package events provides the in-process event bus and event management.
package events

// EventType represents different event types
type EventType string

const (
	ErrorOccurred EventType = "ERROR_OCCURRED"

	// Order lifecycle
	OrderSubmitted EventType = "ORDER_SUBMITTED"
	OrderFilled    EventType = "ORDER_FILLED"
	OrderCancelled EventType = "ORDER_CANCELLED"
	OrderExpired   EventType = "ORDER_EXPIRED"

	// Brokerage order store
	BrokerageOrdersSubmitted EventType = "BROKERAGE_ORDERS_SUBMITTED"
	BrokerageOrdersConverted EventType = "BROKERAGE_ORDERS_CONVERTED"

	// Analysis and market data
	OrdersGenerated EventType = "ORDERS_GENERATED"
	PriceUpdated    EventType = "PRICE_UPDATED"

	// Ledger
	TransactionRecorded EventType = "TRANSACTION_RECORDED"

	// Jobs
	JobStarted   EventType = "JOB_STARTED"
	JobCompleted EventType = "JOB_COMPLETED"
	JobFailed    EventType = "JOB_FAILED"
)

// AllEventTypes lists every event type a stream client may subscribe to
var AllEventTypes = []EventType{
	ErrorOccurred,
	OrderSubmitted,
	OrderFilled,
	OrderCancelled,
	OrderExpired,
	BrokerageOrdersSubmitted,
	BrokerageOrdersConverted,
	OrdersGenerated,
	PriceUpdated,
	TransactionRecorded,
	JobStarted,
	JobCompleted,
	JobFailed,
}
