package order

import (
	"encoding/json"
	"time"
)

const (
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderCancelled = "OrderCancelled"
	EventPaymentFailed  = "PaymentFailed"
)

// Envelope wraps an order event for the notification queue.
type Envelope struct {
	Type       string          `json:"type"`
	OrderID    string          `json:"order_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type OrderConfirmed struct {
	OrderID       string    `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	Items         []Item    `json:"items"`
	Total         int64     `json:"total"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type OrderCancelled struct {
	OrderID       string    `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

type PaymentFailed struct {
	OrderID       string    `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	Gateway       string    `json:"gateway"`
	FailedAt      time.Time `json:"failed_at"`
}

func newEnvelope(eventType, orderID string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: time.Now(),
		Data:       raw,
	}, nil
}
