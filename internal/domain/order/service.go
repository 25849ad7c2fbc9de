package order

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/metrics"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEmptyOrder          = errors.New("order must have at least one item")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrAlreadyConfirmed    = errors.New("order is already confirmed")
	ErrOrderCancelled      = errors.New("order is already cancelled")
	ErrCancelAfterShipment = errors.New("cannot cancel an order after shipment")
)

// Store is the persistence port for orders. Every mutating method runs
// as a single transaction so no error can leave the order status and the
// stock counters half-updated.
type Store interface {
	// CreateFromCart inserts the order and consumes the source cart
	// atomically, locking the cart row so the expiry sweep cannot race
	// the checkout. Returns cart.ErrExpired when the cart is gone.
	CreateFromCart(ctx context.Context, o *Order, ownerID string) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	// Transition moves the order between states with no stock movement,
	// guarded on the expected current status.
	Transition(ctx context.Context, id string, from, to Status, actor, reason string) error
	// ConfirmWithCommit sets the order confirmed and converts every
	// line's reservation into a permanent stock decrement.
	ConfirmWithCommit(ctx context.Context, id, actor string) error
	// CancelWithRelease sets the order cancelled; restock selects
	// between releasing reservations and a compensating restock.
	CancelWithRelease(ctx context.Context, id, actor, reason string, restock bool) error
	StatusLog(ctx context.Context, id string) ([]StatusChange, error)
}

// Publisher is the fire-and-forget notification queue.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Service struct {
	store     Store
	publisher Publisher
}

func NewService(store Store, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Create snapshots the cart into an immutable order in pending_payment.
// Stock stays merely reserved; the reservations carry over from the cart
// and are committed only on payment confirmation.
func (s *Service) Create(ctx context.Context, c *cart.Cart, addr Address, method PaymentMethod) (*Order, error) {
	if c == nil || c.IsEmpty() {
		return nil, ErrEmptyOrder
	}

	items := make([]Item, 0, len(c.Items))
	var total int64
	for _, line := range c.Items {
		items = append(items, Item{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
		total += line.Price * int64(line.Quantity)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	now := time.Now()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        c.OwnerID,
		Items:         items,
		Total:         total,
		Status:        StatusPendingPayment,
		Address:       addr,
		PaymentMethod: method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateFromCart(ctx, o, c.OwnerID); err != nil {
		return nil, err
	}
	metrics.OrdersCreated.Inc()
	return o, nil
}

// ConfirmPayment is only valid from pending_payment. The stock commit
// and the status change happen in one transaction.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, actor string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(StatusConfirmed) {
		return nil, o.transitionError(StatusConfirmed)
	}

	if err := s.store.ConfirmWithCommit(ctx, orderID, actor); err != nil {
		return nil, err
	}
	o.Status = StatusConfirmed
	o.UpdatedAt = time.Now()

	s.publish(ctx, EventOrderConfirmed, o.ID, OrderConfirmed{
		OrderID:       o.ID,
		CustomerEmail: o.Address.Email,
		Items:         o.Items,
		Total:         o.Total,
		ConfirmedAt:   o.UpdatedAt,
	})
	return o, nil
}

// Cancel is valid from any status before shipped. Reservations are
// released when stock was never committed, restocked otherwise.
func (s *Service) Cancel(ctx context.Context, orderID, actor, reason string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(StatusCancelled) {
		return nil, o.transitionError(StatusCancelled)
	}

	if err := s.store.CancelWithRelease(ctx, orderID, actor, reason, o.Status.stockCommitted()); err != nil {
		return nil, err
	}
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()

	s.publish(ctx, EventOrderCancelled, o.ID, OrderCancelled{
		OrderID:       o.ID,
		CustomerEmail: o.Address.Email,
		Reason:        reason,
		CancelledAt:   o.UpdatedAt,
	})
	return o, nil
}

// Refund moves a confirmed or delivered order to refunded. Returned
// goods re-enter stock through the seller's restock action, not here.
func (s *Service) Refund(ctx context.Context, orderID, actor, reason string) error {
	return s.transition(ctx, orderID, StatusRefunded, actor, reason)
}

func (s *Service) MarkProcessing(ctx context.Context, orderID, actor string) error {
	return s.transition(ctx, orderID, StatusProcessing, actor, "")
}

func (s *Service) MarkShipped(ctx context.Context, orderID, actor string) error {
	return s.transition(ctx, orderID, StatusShipped, actor, "")
}

func (s *Service) MarkDelivered(ctx context.Context, orderID, actor string) error {
	return s.transition(ctx, orderID, StatusDelivered, actor, "")
}

// NotifyPaymentFailed publishes a payment failure to the notification
// queue. The order stays pending_payment so the buyer can retry.
func (s *Service) NotifyPaymentFailed(ctx context.Context, orderID, gateway string) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("failed to load order for payment failure event")
		return
	}
	s.publish(ctx, EventPaymentFailed, o.ID, PaymentFailed{
		OrderID:       o.ID,
		CustomerEmail: o.Address.Email,
		Gateway:       gateway,
		FailedAt:      time.Now(),
	})
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Order, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) StatusLog(ctx context.Context, orderID string) ([]StatusChange, error) {
	return s.store.StatusLog(ctx, orderID)
}

func (s *Service) transition(ctx context.Context, orderID string, target Status, actor, reason string) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}
	return s.store.Transition(ctx, orderID, o.Status, target, actor, reason)
}

// publish never fails the caller: notifications are fire-and-forget.
func (s *Service) publish(ctx context.Context, eventType, orderID string, data any) {
	if s.publisher == nil {
		return
	}
	env, err := newEnvelope(eventType, orderID, data)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("failed to build event envelope")
		return
	}
	if err := s.publisher.Publish(ctx, orderID, env); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Str("event", eventType).
			Msg("failed to publish order event")
	}
}
