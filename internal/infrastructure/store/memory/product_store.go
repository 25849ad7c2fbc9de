package memory

import (
	"context"

	"github.com/example/ht-marketplace/internal/domain/catalog"
)

// ProductStore implements catalog.Store and stock.Store.
type ProductStore struct {
	s *Store
}

func (ps *ProductStore) Insert(ctx context.Context, p *catalog.Product) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	cp := *p
	ps.s.products[p.ID] = &cp
	return nil
}

func (ps *ProductStore) Update(ctx context.Context, p *catalog.Product) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	stored, ok := ps.s.products[p.ID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	stored.Name = p.Name
	stored.Description = p.Description
	stored.Price = p.Price
	stored.UpdatedAt = p.UpdatedAt
	return nil
}

func (ps *ProductStore) Get(ctx context.Context, id string) (*catalog.Product, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (ps *ProductStore) List(ctx context.Context, sellerID string, activeOnly bool) ([]*catalog.Product, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	var products []*catalog.Product
	for _, p := range ps.s.products {
		if sellerID != "" && p.SellerID != sellerID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		cp := *p
		products = append(products, &cp)
	}
	return products, nil
}

func (ps *ProductStore) SetActive(ctx context.Context, id string, active bool) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.products[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.Active = active
	return nil
}

func (ps *ProductStore) AddStock(ctx context.Context, id string, qty int) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.products[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.StockQuantity += qty
	return nil
}

// stock.Store implementation. The store mutex makes the check-and-set
// atomic, matching the SQL conditional update.

func (ps *ProductStore) Reserve(ctx context.Context, productID string, qty int) (bool, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.products[productID]
	if !ok {
		return false, catalog.ErrProductNotFound
	}
	ps.s.ReserveCalls = append(ps.s.ReserveCalls, StockCall{productID, qty})
	if !p.Active || p.StockQuantity-p.ReservedQuantity < qty {
		return false, nil
	}
	p.ReservedQuantity += qty
	return true, nil
}

func (ps *ProductStore) Release(ctx context.Context, productID string, qty int) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.products[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	ps.s.ReleaseCalls = append(ps.s.ReleaseCalls, StockCall{productID, qty})
	releaseLocked(p, qty)
	return nil
}

func (ps *ProductStore) Commit(ctx context.Context, productID string, qty int) (bool, error) {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.products[productID]
	if !ok {
		return false, catalog.ErrProductNotFound
	}
	ps.s.CommitCalls = append(ps.s.CommitCalls, StockCall{productID, qty})
	return commitLocked(p, qty), nil
}

func (ps *ProductStore) Restock(ctx context.Context, productID string, qty int) error {
	ps.s.mu.Lock()
	defer ps.s.mu.Unlock()
	p, ok := ps.s.products[productID]
	if !ok {
		return catalog.ErrProductNotFound
	}
	ps.s.RestockCalls = append(ps.s.RestockCalls, StockCall{productID, qty})
	p.StockQuantity += qty
	return nil
}

// callers must hold s.mu

func releaseLocked(p *catalog.Product, qty int) {
	p.ReservedQuantity -= qty
	if p.ReservedQuantity < 0 {
		p.ReservedQuantity = 0
	}
}

func commitLocked(p *catalog.Product, qty int) bool {
	if p.ReservedQuantity < qty || p.StockQuantity < qty {
		return false
	}
	p.StockQuantity -= qty
	p.ReservedQuantity -= qty
	return true
}
