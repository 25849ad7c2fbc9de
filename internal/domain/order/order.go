package order

import (
	"fmt"
	"time"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusConfirmed      Status = "confirmed"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// PaymentMethod selects how the order is paid.
type PaymentMethod string

const (
	MethodMonCash        PaymentMethod = "moncash"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// validTransitions is the full state machine. Cancellation is allowed
// up to (but not after) shipment; refunds only once money has moved.
var validTransitions = map[Status][]Status{
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing:     {StatusShipped, StatusCancelled},
	StatusShipped:        {StatusDelivered},
	StatusDelivered:      {StatusRefunded},
	StatusCancelled:      {},
	StatusRefunded:       {},
}

// stockCommitted reports whether the order's reservations have already
// been converted into permanent stock decrements.
func (s Status) stockCommitted() bool {
	return s == StatusConfirmed || s == StatusProcessing
}

// Item is a line of an order, with name and price captured at checkout.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// Address is the delivery address for an order.
type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Department string `json:"department"`
}

// Order is an immutable snapshot of a cart plus its lifecycle state.
// Items and Total never change after creation; only Status moves.
type Order struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Items         []Item        `json:"items"`
	Total         int64         `json:"total"`
	Status        Status        `json:"status"`
	Address       Address       `json:"address"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// StatusChange is one entry of the order's audit trail.
type StatusChange struct {
	OrderID string    `json:"order_id"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Actor   string    `json:"actor"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// CanTransitionTo checks the state machine without mutating the order.
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError picks the most specific error for a rejected move.
func (o *Order) transitionError(target Status) error {
	switch {
	case o.Status == StatusCancelled:
		return ErrOrderCancelled
	case target == StatusConfirmed && o.Status == StatusConfirmed:
		return ErrAlreadyConfirmed
	case target == StatusCancelled && (o.Status == StatusShipped || o.Status == StatusDelivered):
		return ErrCancelAfterShipment
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
	}
}
