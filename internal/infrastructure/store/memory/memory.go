// Package memory provides in-memory store implementations for tests.
// All views share one state guarded by a single mutex, so reservation
// operations are atomic exactly like their SQL counterparts.
package memory

import (
	"sync"

	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/domain/order"
	"github.com/example/ht-marketplace/internal/payment"
)

// StockCall records a stock mutation for assertions.
type StockCall struct {
	ProductID string
	Qty       int
}

type Store struct {
	mu sync.Mutex

	products   map[string]*catalog.Product
	carts      map[string]*cart.Cart // ownerID -> cart
	checkedOut map[string]bool       // carts locked by an in-flight checkout
	orders     map[string]*order.Order
	statusLog  map[string][]order.StatusChange
	txns       map[string]*payment.Transaction
	txnByGtw   map[string]string // gateway_txn_id -> txn id

	// For tracking calls in tests
	ReserveCalls  []StockCall
	ReleaseCalls  []StockCall
	CommitCalls   []StockCall
	RestockCalls  []StockCall
	WebhookEvents []*payment.WebhookEvent
}

func New() *Store {
	return &Store{
		products:   make(map[string]*catalog.Product),
		carts:      make(map[string]*cart.Cart),
		checkedOut: make(map[string]bool),
		orders:     make(map[string]*order.Order),
		statusLog:  make(map[string][]order.StatusChange),
		txns:       make(map[string]*payment.Transaction),
		txnByGtw:   make(map[string]string),
	}
}

// Products returns the catalog.Store / stock.Store view.
func (s *Store) Products() *ProductStore { return &ProductStore{s} }

// Carts returns the cart.Store view.
func (s *Store) Carts() *CartStore { return &CartStore{s} }

// Orders returns the order.Store view.
func (s *Store) Orders() *OrderStore { return &OrderStore{s} }

// Transactions returns the payment.Store / payment.EventStore view.
func (s *Store) Transactions() *TransactionStore { return &TransactionStore{s} }

// SetCheckedOut marks a cart as locked by an in-flight checkout so the
// expiry sweep skips it, mirroring FOR UPDATE SKIP LOCKED.
func (s *Store) SetCheckedOut(ownerID string, locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if locked {
		s.checkedOut[ownerID] = true
	} else {
		delete(s.checkedOut, ownerID)
	}
}

// Product returns a copy of the stored product for assertions.
func (s *Store) Product(id string) (catalog.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, false
	}
	return *p, true
}

// Order returns a copy of the stored order for assertions.
func (s *Store) Order(id string) (order.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, false
	}
	return copyOrder(o), true
}

func copyCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = make(map[string]cart.Item, len(c.Items))
	for k, v := range c.Items {
		cp.Items[k] = v
	}
	return &cp
}

func copyOrder(o *order.Order) order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	return cp
}
