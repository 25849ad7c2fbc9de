package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/domain/order"
	"github.com/example/ht-marketplace/internal/domain/stock"
	"github.com/example/ht-marketplace/internal/infrastructure/store/memory"
)

// capturingPublisher records published events instead of writing to Kafka.
type capturingPublisher struct {
	events []any
}

func (p *capturingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.events = append(p.events, event)
	return nil
}

var testAddress = order.Address{
	FullName:   "Marie Joseph",
	Phone:      "+509 3456 7890",
	Email:      "marie@example.ht",
	Street:     "12 Rue Capois",
	City:       "Port-au-Prince",
	Department: "Ouest",
}

type fixture struct {
	ms     *memory.Store
	carts  *cart.Service
	orders *order.Service
	pub    *capturingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms := memory.New()
	pub := &capturingPublisher{}
	return &fixture{
		ms:     ms,
		carts:  cart.NewService(ms.Carts(), ms.Products(), stock.NewManager(ms.Products())),
		orders: order.NewService(ms.Orders(), pub),
		pub:    pub,
	}
}

func (f *fixture) seedProduct(t *testing.T, id string, price int64, stockQty int) {
	t.Helper()
	err := f.ms.Products().Insert(context.Background(), &catalog.Product{
		ID:            id,
		SellerID:      "seller-1",
		Name:          "product " + id,
		Price:         price,
		StockQuantity: stockQty,
		Active:        true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
	require.NoError(t, err)
}

// placeOrder builds a cart and snapshots it into a pending order.
func (f *fixture) placeOrder(t *testing.T, buyerID string, lines map[string]int) *order.Order {
	t.Helper()
	for productID, qty := range lines {
		_, err := f.carts.AddItem(context.Background(), buyerID, productID, qty)
		require.NoError(t, err)
	}
	c, err := f.carts.Get(context.Background(), buyerID)
	require.NoError(t, err)
	o, err := f.orders.Create(context.Background(), c, testAddress, order.MethodMonCash)
	require.NoError(t, err)
	return o
}

func TestCreate_SnapshotsCart(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 50000, 10)
	f.seedProduct(t, "p2", 20000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 2, "p2": 1})

	assert.Equal(t, order.StatusPendingPayment, o.Status)
	assert.Equal(t, int64(120000), o.Total)
	require.Len(t, o.Items, 2)
	// items sorted by product ID
	assert.Equal(t, "p1", o.Items[0].ProductID)
	assert.Equal(t, "p2", o.Items[1].ProductID)

	// the cart is consumed
	_, err := f.ms.Carts().Get(context.Background(), "buyer-1")
	assert.ErrorIs(t, err, cart.ErrCartNotFound)

	// stock is still merely reserved
	p, _ := f.ms.Product("p1")
	assert.Equal(t, 10, p.StockQuantity)
	assert.Equal(t, 2, p.ReservedQuantity)
}

func TestCreate_EmptyCart(t *testing.T) {
	f := newFixture(t)

	c, err := f.carts.Get(context.Background(), "buyer-1")
	require.NoError(t, err)
	_, err = f.orders.Create(context.Background(), c, testAddress, order.MethodMonCash)
	assert.ErrorIs(t, err, order.ErrEmptyOrder)
}

func TestCreate_ConsumedCart(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	_, err := f.carts.AddItem(context.Background(), "buyer-1", "p1", 1)
	require.NoError(t, err)
	c, err := f.carts.Get(context.Background(), "buyer-1")
	require.NoError(t, err)

	_, err = f.orders.Create(context.Background(), c, testAddress, order.MethodMonCash)
	require.NoError(t, err)

	// the same cart snapshot cannot buy twice
	_, err = f.orders.Create(context.Background(), c, testAddress, order.MethodMonCash)
	assert.ErrorIs(t, err, cart.ErrExpired)
}

func TestConfirmPayment_CommitsStock(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 3})

	confirmed, err := f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, confirmed.Status)

	p, _ := f.ms.Product("p1")
	assert.Equal(t, 7, p.StockQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)

	// event published with the customer's email
	require.Len(t, f.pub.events, 1)
	env := f.pub.events[0].(*order.Envelope)
	assert.Equal(t, order.EventOrderConfirmed, env.Type)
	assert.Equal(t, o.ID, env.OrderID)
}

func TestConfirmPayment_Twice(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 10, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 3})

	_, err := f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	require.NoError(t, err)
	_, err = f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	assert.ErrorIs(t, err, order.ErrAlreadyConfirmed)

	// no second commit
	assert.Len(t, f.ms.CommitCalls, 1)
}

func TestCancel_PendingReleasesReservations(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 3})

	cancelled, err := f.orders.Cancel(context.Background(), o.ID, "buyer-1", "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	p, _ := f.ms.Product("p1")
	assert.Equal(t, 10, p.StockQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
	assert.Len(t, f.ms.ReleaseCalls, 1)
	assert.Empty(t, f.ms.RestockCalls)
}

func TestCancel_ConfirmedRestocks(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 3})
	_, err := f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	require.NoError(t, err)

	_, err = f.orders.Cancel(context.Background(), o.ID, "seller-1", "out of beans")
	require.NoError(t, err)

	p, _ := f.ms.Product("p1")
	assert.Equal(t, 10, p.StockQuantity)
	assert.Equal(t, 0, p.ReservedQuantity)
	require.Len(t, f.ms.RestockCalls, 1)
	assert.Equal(t, memory.StockCall{ProductID: "p1", Qty: 3}, f.ms.RestockCalls[0])
}

func TestCancel_AfterShipment(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 1})
	_, err := f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	require.NoError(t, err)
	require.NoError(t, f.orders.MarkProcessing(context.Background(), o.ID, "seller-1"))
	require.NoError(t, f.orders.MarkShipped(context.Background(), o.ID, "seller-1"))

	_, err = f.orders.Cancel(context.Background(), o.ID, "buyer-1", "")
	assert.ErrorIs(t, err, order.ErrCancelAfterShipment)

	got, _ := f.ms.Order(o.ID)
	assert.Equal(t, order.StatusShipped, got.Status)
}

func TestFulfilmentFlow(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 1})
	_, err := f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	require.NoError(t, err)

	require.NoError(t, f.orders.MarkProcessing(context.Background(), o.ID, "seller-1"))
	require.NoError(t, f.orders.MarkShipped(context.Background(), o.ID, "seller-1"))
	require.NoError(t, f.orders.MarkDelivered(context.Background(), o.ID, "seller-1"))

	got, _ := f.ms.Order(o.ID)
	assert.Equal(t, order.StatusDelivered, got.Status)

	// refund after delivery, stock untouched
	require.NoError(t, f.orders.Refund(context.Background(), o.ID, "seller-1", "defective"))
	got, _ = f.ms.Order(o.ID)
	assert.Equal(t, order.StatusRefunded, got.Status)
	assert.Empty(t, f.ms.RestockCalls)
}

func TestInvalidTransitions_LeaveStatusUnchanged(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 1})

	// pending orders cannot ship, deliver or refund
	assert.ErrorIs(t, f.orders.MarkShipped(context.Background(), o.ID, "seller-1"), order.ErrInvalidTransition)
	assert.ErrorIs(t, f.orders.MarkDelivered(context.Background(), o.ID, "seller-1"), order.ErrInvalidTransition)
	assert.ErrorIs(t, f.orders.Refund(context.Background(), o.ID, "seller-1", ""), order.ErrInvalidTransition)

	got, _ := f.ms.Order(o.ID)
	assert.Equal(t, order.StatusPendingPayment, got.Status)
}

func TestCancelled_IsTerminal(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 1})
	_, err := f.orders.Cancel(context.Background(), o.ID, "buyer-1", "")
	require.NoError(t, err)

	_, err = f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	assert.ErrorIs(t, err, order.ErrOrderCancelled)
	assert.ErrorIs(t, f.orders.MarkProcessing(context.Background(), o.ID, "seller-1"), order.ErrOrderCancelled)
}

func TestStatusLog_RecordsEveryChange(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	o := f.placeOrder(t, "buyer-1", map[string]int{"p1": 1})
	_, err := f.orders.ConfirmPayment(context.Background(), o.ID, "gateway:moncash")
	require.NoError(t, err)
	_, err = f.orders.Cancel(context.Background(), o.ID, "seller-1", "stockout")
	require.NoError(t, err)

	log, err := f.orders.StatusLog(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, log, 3)

	assert.Equal(t, order.Status(""), log[0].From)
	assert.Equal(t, order.StatusPendingPayment, log[0].To)
	assert.Equal(t, order.StatusConfirmed, log[1].To)
	assert.Equal(t, "gateway:moncash", log[1].Actor)
	assert.Equal(t, order.StatusCancelled, log[2].To)
	assert.Equal(t, "stockout", log[2].Reason)
}

func TestListByUser(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "p1", 1000, 10)

	f.placeOrder(t, "buyer-1", map[string]int{"p1": 1})
	f.placeOrder(t, "buyer-2", map[string]int{"p1": 1})

	orders, err := f.orders.ListByUser(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, "buyer-1", orders[0].UserID)
}
