package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/order"
)

// OrderStore implements order.Store with the same atomicity guarantees
// as the Postgres store: every mutation happens under one lock.
type OrderStore struct {
	s *Store
}

func (os *OrderStore) CreateFromCart(ctx context.Context, o *order.Order, ownerID string) error {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()

	if _, ok := os.s.carts[ownerID]; !ok {
		return cart.ErrExpired
	}
	delete(os.s.carts, ownerID)

	cp := copyOrder(o)
	os.s.orders[o.ID] = &cp
	os.appendLogLocked(o.ID, "", o.Status, o.UserID, "")
	return nil
}

func (os *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	o, ok := os.s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (os *OrderStore) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	var orders []*order.Order
	for _, o := range os.s.orders {
		if o.UserID == userID {
			cp := copyOrder(o)
			orders = append(orders, &cp)
		}
	}
	return orders, nil
}

func (os *OrderStore) Transition(ctx context.Context, id string, from, to order.Status, actor, reason string) error {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	o, ok := os.s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != from {
		return fmt.Errorf("%w: cannot transition from %s to %s", order.ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	os.appendLogLocked(id, from, to, actor, reason)
	return nil
}

func (os *OrderStore) ConfirmWithCommit(ctx context.Context, id, actor string) error {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	o, ok := os.s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	if o.Status != order.StatusPendingPayment {
		if o.Status == order.StatusConfirmed {
			return order.ErrAlreadyConfirmed
		}
		return fmt.Errorf("%w: cannot transition from %s to %s", order.ErrInvalidTransition, o.Status, order.StatusConfirmed)
	}

	for _, item := range o.Items {
		p, ok := os.s.products[item.ProductID]
		if !ok {
			return fmt.Errorf("stock commit failed for product %s on order %s", item.ProductID, id)
		}
		os.s.CommitCalls = append(os.s.CommitCalls, StockCall{item.ProductID, item.Quantity})
		if !commitLocked(p, item.Quantity) {
			return fmt.Errorf("stock commit failed for product %s on order %s", item.ProductID, id)
		}
	}

	from := o.Status
	o.Status = order.StatusConfirmed
	o.UpdatedAt = time.Now()
	os.appendLogLocked(id, from, order.StatusConfirmed, actor, "")
	return nil
}

func (os *OrderStore) CancelWithRelease(ctx context.Context, id, actor, reason string, restock bool) error {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	o, ok := os.s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	switch o.Status {
	case order.StatusPendingPayment, order.StatusConfirmed, order.StatusProcessing:
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", order.ErrInvalidTransition, o.Status, order.StatusCancelled)
	}

	for _, item := range o.Items {
		p, ok := os.s.products[item.ProductID]
		if !ok {
			continue
		}
		if restock {
			os.s.RestockCalls = append(os.s.RestockCalls, StockCall{item.ProductID, item.Quantity})
			p.StockQuantity += item.Quantity
		} else {
			os.s.ReleaseCalls = append(os.s.ReleaseCalls, StockCall{item.ProductID, item.Quantity})
			releaseLocked(p, item.Quantity)
		}
	}

	from := o.Status
	o.Status = order.StatusCancelled
	o.UpdatedAt = time.Now()
	os.appendLogLocked(id, from, order.StatusCancelled, actor, reason)
	return nil
}

func (os *OrderStore) StatusLog(ctx context.Context, id string) ([]order.StatusChange, error) {
	os.s.mu.Lock()
	defer os.s.mu.Unlock()
	return append([]order.StatusChange(nil), os.s.statusLog[id]...), nil
}

func (os *OrderStore) appendLogLocked(orderID string, from, to order.Status, actor, reason string) {
	os.s.statusLog[orderID] = append(os.s.statusLog[orderID], order.StatusChange{
		OrderID: orderID,
		From:    from,
		To:      to,
		Actor:   actor,
		Reason:  reason,
		At:      time.Now(),
	})
}
