package memory

import (
	"context"
	"time"

	"github.com/example/ht-marketplace/internal/domain/cart"
)

// CartStore implements cart.Store.
type CartStore struct {
	s *Store
}

func (cs *CartStore) Get(ctx context.Context, ownerID string) (*cart.Cart, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	c, ok := cs.s.carts[ownerID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (cs *CartStore) Save(ctx context.Context, c *cart.Cart) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	cs.s.carts[c.OwnerID] = copyCart(c)
	return nil
}

func (cs *CartStore) Delete(ctx context.Context, ownerID string) error {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()
	delete(cs.s.carts, ownerID)
	return nil
}

// ExpireIdle releases the swept carts' holds and deletes them, skipping
// carts marked as checked out.
func (cs *CartStore) ExpireIdle(ctx context.Context, cutoff time.Time) (int, error) {
	cs.s.mu.Lock()
	defer cs.s.mu.Unlock()

	n := 0
	for ownerID, c := range cs.s.carts {
		if !c.UpdatedAt.Before(cutoff) {
			continue
		}
		if cs.s.checkedOut[ownerID] {
			continue
		}
		for _, item := range c.Items {
			if p, ok := cs.s.products[item.ProductID]; ok {
				cs.s.ReleaseCalls = append(cs.s.ReleaseCalls, StockCall{item.ProductID, item.Quantity})
				releaseLocked(p, item.Quantity)
			}
		}
		delete(cs.s.carts, ownerID)
		n++
	}
	return n, nil
}
