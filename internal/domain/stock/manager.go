package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ht-marketplace/internal/metrics"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Store is the persistence port for stock holds. Reserve must be an
// atomic conditional update: it succeeds only when
// stock_quantity - reserved_quantity >= qty at the moment of the write,
// so two racing reservations for the last unit cannot both win.
type Store interface {
	Reserve(ctx context.Context, productID string, qty int) (bool, error)
	Release(ctx context.Context, productID string, qty int) error
	Commit(ctx context.Context, productID string, qty int) (bool, error)
	Restock(ctx context.Context, productID string, qty int) error
}

// Manager holds and releases soft reservations on product stock.
// A reservation does not reduce the physical count until Commit
// converts it into a permanent decrement on payment confirmation.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Reserve places a hold on qty units. Returns ErrInsufficientStock when
// the available quantity is smaller than qty.
func (m *Manager) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ok, err := m.store.Reserve(ctx, productID, qty)
	if err != nil {
		return err
	}
	if !ok {
		metrics.ReservationConflicts.Inc()
		return fmt.Errorf("%w: product %s, requested %d", ErrInsufficientStock, productID, qty)
	}
	return nil
}

// Release gives back a hold. The reserved counter is floored at zero so
// a duplicate release can never drive it negative.
func (m *Manager) Release(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return m.store.Release(ctx, productID, qty)
}

// Commit converts a hold into a permanent stock decrement.
func (m *Manager) Commit(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ok, err := m.store.Commit(ctx, productID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("commit without matching reservation: product %s, qty %d", productID, qty)
	}
	return nil
}

// Restock compensates a committed decrement when a confirmed order is
// cancelled: the physical count goes back up, reservations are untouched.
func (m *Manager) Restock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return m.store.Restock(ctx, productID, qty)
}
