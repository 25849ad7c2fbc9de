package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductInactive = errors.New("product is not active")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidStock    = errors.New("stock must not be negative")
)

// Store is the persistence port for products. Implementations must keep
// the stock invariants: 0 <= reserved_quantity <= stock_quantity.
type Store interface {
	Insert(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, sellerID string, activeOnly bool) ([]*Product, error)
	SetActive(ctx context.Context, id string, active bool) error
	AddStock(ctx context.Context, id string, qty int) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, sellerID, name, description string, price int64, stock int) (*Product, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}

	now := time.Now()
	p := &Product{
		ID:            uuid.New().String(),
		SellerID:      sellerID,
		Name:          name,
		Description:   description,
		Price:         price,
		StockQuantity: stock,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id, name, description string, price int64) (*Product, error) {
	if price <= 0 {
		return nil, ErrInvalidPrice
	}

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = name
	p.Description = description
	p.Price = price
	p.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Deactivate soft-deletes a product. Existing reservations stay valid;
// new reservations are refused by the store.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.store.SetActive(ctx, id, false)
}

func (s *Service) AddStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return ErrInvalidStock
	}
	return s.store.AddStock(ctx, id, qty)
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, sellerID string, activeOnly bool) ([]*Product, error) {
	return s.store.List(ctx, sellerID, activeOnly)
}

// StockStatus reports availability for a requested quantity without
// mutating anything.
func (s *Service) StockStatus(ctx context.Context, id string, wantQty int) (*StockStatus, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StockStatus{
		ProductID:  p.ID,
		Available:  p.Available(),
		Label:      p.Label(),
		CanFulfill: p.Active && wantQty > 0 && p.Available() >= wantQty,
	}, nil
}
