package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/ht-marketplace/internal/payment"
)

// PostgresTransactionStore implements payment.Store. The UNIQUE
// constraint on gateway_txn_id is what makes webhook handling
// idempotent at the storage layer.
type PostgresTransactionStore struct {
	db *sql.DB
}

func NewPostgresTransactionStore(db *sql.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

func (s *PostgresTransactionStore) Insert(ctx context.Context, t *payment.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, order_id, gateway, gateway_txn_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.OrderID, t.Gateway, t.GatewayTxnID, t.Amount, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *PostgresTransactionStore) GetByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*payment.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, gateway, gateway_txn_id, amount, status, created_at, updated_at
		FROM transactions WHERE gateway_txn_id = $1`, gatewayTxnID)
	return scanTransaction(row)
}

func (s *PostgresTransactionStore) LatestByOrder(ctx context.Context, orderID string) (*payment.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, gateway, gateway_txn_id, amount, status, created_at, updated_at
		FROM transactions WHERE order_id = $1
		ORDER BY created_at DESC LIMIT 1`, orderID)
	return scanTransaction(row)
}

func (s *PostgresTransactionStore) UpdateStatus(ctx context.Context, id string, status payment.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now())
	if err != nil {
		return err
	}
	return requireRow(res, payment.ErrTransactionNotFound)
}

func scanTransaction(row *sql.Row) (*payment.Transaction, error) {
	var t payment.Transaction
	err := row.Scan(&t.ID, &t.OrderID, &t.Gateway, &t.GatewayTxnID, &t.Amount, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// PostgresWebhookEventStore implements payment.EventStore, the operator
// record of every inbound webhook delivery.
type PostgresWebhookEventStore struct {
	db *sql.DB
}

func NewPostgresWebhookEventStore(db *sql.DB) *PostgresWebhookEventStore {
	return &PostgresWebhookEventStore{db: db}
}

func (s *PostgresWebhookEventStore) Record(ctx context.Context, ev *payment.WebhookEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, gateway_txn_id, order_id, status, payload, signature_ok, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.GatewayTxnID, ev.OrderID, ev.Status, ev.Payload, ev.SignatureOK, ev.ReceivedAt)
	return err
}
