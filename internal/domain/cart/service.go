package cart

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/domain/stock"
	"github.com/example/ht-marketplace/internal/metrics"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrExpired         = errors.New("cart has expired")
	ErrItemNotFound    = errors.New("item not in cart")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("product cannot be added to cart")
)

// Store is the persistence port for carts.
type Store interface {
	Get(ctx context.Context, ownerID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, ownerID string) error
	// ExpireIdle removes carts untouched since before the cutoff and
	// releases their reservations, skipping carts locked by an
	// in-flight checkout. Returns the number of carts removed.
	ExpireIdle(ctx context.Context, cutoff time.Time) (int, error)
}

// Service mutates carts while keeping reservations in lockstep: stock
// is reserved before a line grows and released before it shrinks.
type Service struct {
	store    Store
	products catalog.Store
	stock    *stock.Manager
}

func NewService(store Store, products catalog.Store, stockMgr *stock.Manager) *Service {
	return &Service{store: store, products: products, stock: stockMgr}
}

// Get returns the owner's cart, or an empty one if none exists yet.
func (s *Service) Get(ctx context.Context, ownerID string) (*Cart, error) {
	c, err := s.store.Get(ctx, ownerID)
	if errors.Is(err, ErrCartNotFound) {
		return NewCart(ownerID), nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetExisting returns the owner's cart, reporting a swept or never
// created cart as expired so the buyer knows to rebuild it.
func (s *Service) GetExisting(ctx context.Context, ownerID string) (*Cart, error) {
	c, err := s.store.Get(ctx, ownerID)
	if errors.Is(err, ErrCartNotFound) {
		return nil, ErrExpired
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AddItem reserves qty units first and only then grows the cart line.
// If persisting the cart fails, the reservation is compensated so no
// stock stays held for a line that was never written.
func (s *Service) AddItem(ctx context.Context, ownerID, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrInvalidProduct
	}

	if err := s.stock.Reserve(ctx, productID, qty); err != nil {
		return nil, err
	}

	c, err := s.Get(ctx, ownerID)
	if err != nil {
		s.compensate(ctx, productID, qty)
		return nil, err
	}

	line, ok := c.Items[productID]
	if ok {
		line.Quantity += qty
	} else {
		line = Item{
			ProductID: productID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  qty,
		}
	}
	c.Items[productID] = line
	c.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, c); err != nil {
		s.compensate(ctx, productID, qty)
		return nil, err
	}
	return c, nil
}

// UpdateQuantity sets a line to an absolute quantity, reserving or
// releasing only the delta. Zero removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, ownerID, productID string, qty int) (*Cart, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	if qty == 0 {
		return s.RemoveItem(ctx, ownerID, productID)
	}

	c, err := s.GetExisting(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	line, ok := c.Items[productID]
	if !ok {
		return nil, ErrItemNotFound
	}

	delta := qty - line.Quantity
	switch {
	case delta > 0:
		if err := s.stock.Reserve(ctx, productID, delta); err != nil {
			return nil, err
		}
	case delta < 0:
		if err := s.stock.Release(ctx, productID, -delta); err != nil {
			return nil, err
		}
	}

	line.Quantity = qty
	c.Items[productID] = line
	c.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, c); err != nil {
		if delta > 0 {
			s.compensate(ctx, productID, delta)
		}
		return nil, err
	}
	return c, nil
}

// RemoveItem drops a line and releases its full reservation.
func (s *Service) RemoveItem(ctx context.Context, ownerID, productID string) (*Cart, error) {
	c, err := s.GetExisting(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	line, ok := c.Items[productID]
	if !ok {
		return nil, ErrItemNotFound
	}

	if err := s.stock.Release(ctx, productID, line.Quantity); err != nil {
		return nil, err
	}
	delete(c.Items, productID)
	c.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the cart and releases every reservation it held.
func (s *Service) Clear(ctx context.Context, ownerID string) error {
	c, err := s.store.Get(ctx, ownerID)
	if errors.Is(err, ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, item := range c.Items {
		if err := s.stock.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return s.store.Delete(ctx, ownerID)
}

// ExpireIdle sweeps carts idle since before now-window.
func (s *Service) ExpireIdle(ctx context.Context, window time.Duration) (int, error) {
	n, err := s.store.ExpireIdle(ctx, time.Now().Add(-window))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.CartsExpired.Add(float64(n))
	}
	return n, nil
}

// compensate undoes a reservation after a failed cart write. A failed
// release is only logged; the expiry sweep reconciles leftovers.
func (s *Service) compensate(ctx context.Context, productID string, qty int) {
	if err := s.stock.Release(ctx, productID, qty); err != nil {
		log.Error().Err(err).Str("product_id", productID).Int("qty", qty).
			Msg("failed to release reservation after cart write error")
	}
}
