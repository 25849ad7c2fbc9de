package memory

import (
	"context"
	"time"

	"github.com/example/ht-marketplace/internal/payment"
)

// TransactionStore implements payment.Store and payment.EventStore.
type TransactionStore struct {
	s *Store
}

func (ts *TransactionStore) Insert(ctx context.Context, t *payment.Transaction) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()
	cp := *t
	ts.s.txns[t.ID] = &cp
	ts.s.txnByGtw[t.GatewayTxnID] = t.ID
	return nil
}

func (ts *TransactionStore) GetByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*payment.Transaction, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()
	id, ok := ts.s.txnByGtw[gatewayTxnID]
	if !ok {
		return nil, payment.ErrTransactionNotFound
	}
	cp := *ts.s.txns[id]
	return &cp, nil
}

func (ts *TransactionStore) LatestByOrder(ctx context.Context, orderID string) (*payment.Transaction, error) {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()
	var latest *payment.Transaction
	for _, t := range ts.s.txns {
		if t.OrderID != orderID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, payment.ErrTransactionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (ts *TransactionStore) UpdateStatus(ctx context.Context, id string, status payment.Status) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()
	t, ok := ts.s.txns[id]
	if !ok {
		return payment.ErrTransactionNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

func (ts *TransactionStore) Record(ctx context.Context, ev *payment.WebhookEvent) error {
	ts.s.mu.Lock()
	defer ts.s.mu.Unlock()
	cp := *ev
	ts.s.WebhookEvents = append(ts.s.WebhookEvents, &cp)
	return nil
}
