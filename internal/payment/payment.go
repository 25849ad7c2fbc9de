package payment

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

const (
	GatewayMonCash        = "moncash"
	GatewayCashOnDelivery = "cash_on_delivery"
)

var (
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrWebhookAuth         = errors.New("webhook signature verification failed")
	ErrBadPayload          = errors.New("malformed webhook payload")
	ErrAmountMismatch      = errors.New("webhook amount does not match transaction")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Transaction records one payment attempt against an order. GatewayTxnID
// is the external processor's identifier and is unique across attempts;
// webhook handling is keyed by it.
type Transaction struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"order_id"`
	Gateway      string    `json:"gateway"`
	GatewayTxnID string    `json:"gateway_txn_id"`
	Amount       int64     `json:"amount"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PaymentIntent is what the external gateway hands back when a payment
// is created: a token identifying the attempt and the URL to send the
// buyer to.
type PaymentIntent struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// Gateway isolates the external payment processor.
type Gateway interface {
	CreatePayment(ctx context.Context, orderID string, amount int64) (*PaymentIntent, error)
	VerifyPayment(ctx context.Context, gatewayTxnID string) (Status, error)
}

// Store is the persistence port for transactions.
type Store interface {
	Insert(ctx context.Context, t *Transaction) error
	GetByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*Transaction, error)
	LatestByOrder(ctx context.Context, orderID string) (*Transaction, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// WebhookEvent is the operator-facing record of every inbound webhook
// delivery, authenticated or not.
type WebhookEvent struct {
	ID           string    `json:"id"`
	GatewayTxnID string    `json:"gateway_txn_id"`
	OrderID      string    `json:"order_id"`
	Status       string    `json:"status"`
	Payload      []byte    `json:"payload"`
	SignatureOK  bool      `json:"signature_ok"`
	ReceivedAt   time.Time `json:"received_at"`
}

type EventStore interface {
	Record(ctx context.Context, ev *WebhookEvent) error
}
