package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OrderSubmittedData contains data for OrderSubmitted events
type OrderSubmittedData struct {
	OrderID    string          `json:"order_id"`
	StatusID   string          `json:"status_id"`
	Ticker     string          `json:"ticker"`
	OrderType  string          `json:"order_type"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	SubmitTime time.Time       `json:"submit_time"`
}

// EventType returns the event type for OrderSubmittedData
func (d *OrderSubmittedData) EventType() EventType {
	return OrderSubmitted
}

// OrderFilledData contains data for OrderFilled events
type OrderFilledData struct {
	OrderID    string          `json:"order_id"`
	Ticker     string          `json:"ticker"`
	OrderType  string          `json:"order_type"`
	Shares     decimal.Decimal `json:"shares"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Executed   time.Time       `json:"executed"`
}

// EventType returns the event type for OrderFilledData
func (d *OrderFilledData) EventType() EventType {
	return OrderFilled
}

// OrderCancelledData contains data for OrderCancelled events
type OrderCancelledData struct {
	OrderID string `json:"order_id"`
	Ticker  string `json:"ticker"`
	Reason  string `json:"reason,omitempty"`
}

// EventType returns the event type for OrderCancelledData
func (d *OrderCancelledData) EventType() EventType {
	return OrderCancelled
}

// OrderExpiredData contains data for OrderExpired events
type OrderExpiredData struct {
	OrderID    string    `json:"order_id"`
	Ticker     string    `json:"ticker"`
	Expiration time.Time `json:"expiration"`
	Expired    time.Time `json:"expired"`
}

// EventType returns the event type for OrderExpiredData
func (d *OrderExpiredData) EventType() EventType {
	return OrderExpired
}

// BrokerageOrdersData contains data for brokerage store events.
// The same payload is used for submissions and conversions.
type BrokerageOrdersData struct {
	Type     EventType `json:"-"`
	Count    int       `json:"count"`
	OrderIDs []string  `json:"order_ids,omitempty"`
}

// EventType returns the event type for BrokerageOrdersData
func (d *BrokerageOrdersData) EventType() EventType {
	if d.Type == "" {
		return BrokerageOrdersSubmitted
	}
	return d.Type
}

// OrdersGeneratedData contains data for OrdersGenerated events
type OrdersGeneratedData struct {
	Count   int      `json:"count"`
	Tickers []string `json:"tickers,omitempty"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
}

// EventType returns the event type for OrdersGeneratedData
func (d *OrdersGeneratedData) EventType() EventType {
	return OrdersGenerated
}

// PriceUpdatedData contains data for PriceUpdated events
type PriceUpdatedData struct {
	Ticker string `json:"ticker"`
	Points int    `json:"points"`
}

// EventType returns the event type for PriceUpdatedData
func (d *PriceUpdatedData) EventType() EventType {
	return PriceUpdated
}

// TransactionRecordedData contains data for TransactionRecorded events
type TransactionRecordedData struct {
	OrderType      string          `json:"order_type"`
	Ticker         string          `json:"ticker,omitempty"`
	Shares         decimal.Decimal `json:"shares"`
	Price          decimal.Decimal `json:"price"`
	SettlementDate time.Time       `json:"settlement_date"`
}

// EventType returns the event type for TransactionRecordedData
func (d *TransactionRecordedData) EventType() EventType {
	return TransactionRecorded
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobName     string                 `json:"job_name"`
	Status      string                 `json:"status"` // "started", "completed", "failed"
	Description string                 `json:"description,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Duration    float64                `json:"duration,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 {
		return nil
	}

	eventData := newEventData(aux.Type)
	if eventData == nil {
		var raw map[string]interface{}
		if err := json.Unmarshal(aux.Data, &raw); err != nil {
			return err
		}
		e.Data = &GenericEventData{Type: aux.Type, Data: raw}
		return nil
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// newEventData returns an empty typed payload for eventType, nil if unknown
func newEventData(eventType EventType) EventData {
	switch eventType {
	case OrderSubmitted:
		return &OrderSubmittedData{}
	case OrderFilled:
		return &OrderFilledData{}
	case OrderCancelled:
		return &OrderCancelledData{}
	case OrderExpired:
		return &OrderExpiredData{}
	case BrokerageOrdersSubmitted, BrokerageOrdersConverted:
		return &BrokerageOrdersData{Type: eventType}
	case OrdersGenerated:
		return &OrdersGeneratedData{}
	case PriceUpdated:
		return &PriceUpdatedData{}
	case TransactionRecorded:
		return &TransactionRecordedData{}
	case ErrorOccurred:
		return &ErrorEventData{}
	case JobStarted, JobCompleted, JobFailed:
		return &JobStatusData{}
	}
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
