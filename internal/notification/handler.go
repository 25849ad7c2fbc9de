package notification

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/example/ht-marketplace/internal/domain/order"
	"github.com/example/ht-marketplace/internal/email"
)

// Handler turns order lifecycle events into customer emails.
type Handler struct {
	emailService *email.Service
}

func NewHandler(emailSvc *email.Service) *Handler {
	return &Handler{emailService: emailSvc}
}

// HandleEvent processes one event from the notification topic. Unknown
// event types are skipped so new producers can ship ahead of consumers.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var env order.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		log.Error().Err(err).Str("key", string(key)).Msg("failed to unmarshal event envelope")
		return err
	}

	switch env.Type {
	case order.EventOrderConfirmed:
		return h.handleOrderConfirmed(env)
	case order.EventOrderCancelled:
		return h.handleOrderCancelled(env)
	case order.EventPaymentFailed:
		return h.handlePaymentFailed(env)
	default:
		return nil
	}
}

func (h *Handler) handleOrderConfirmed(env order.Envelope) error {
	var e order.OrderConfirmed
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Error().Err(err).Str("order_id", env.OrderID).Msg("failed to unmarshal OrderConfirmed event")
		return err
	}

	if e.CustomerEmail == "" {
		log.Warn().Str("order_id", e.OrderID).Msg("order confirmed without customer email, skipping notification")
		return nil
	}

	emailItems := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		emailItems[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	if err := h.emailService.SendOrderConfirmation(e.CustomerEmail, e.OrderID, e.Total, emailItems); err != nil {
		log.Error().Err(err).Str("order_id", e.OrderID).Msg("failed to send confirmation email")
		return err
	}

	log.Info().Str("order_id", e.OrderID).Msg("order confirmation email sent")
	return nil
}

func (h *Handler) handleOrderCancelled(env order.Envelope) error {
	var e order.OrderCancelled
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Error().Err(err).Str("order_id", env.OrderID).Msg("failed to unmarshal OrderCancelled event")
		return err
	}

	if e.CustomerEmail == "" {
		return nil
	}

	if err := h.emailService.SendOrderCancellation(e.CustomerEmail, e.OrderID, e.Reason); err != nil {
		log.Error().Err(err).Str("order_id", e.OrderID).Msg("failed to send cancellation email")
		return err
	}

	log.Info().Str("order_id", e.OrderID).Msg("order cancellation email sent")
	return nil
}

func (h *Handler) handlePaymentFailed(env order.Envelope) error {
	var e order.PaymentFailed
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Error().Err(err).Str("order_id", env.OrderID).Msg("failed to unmarshal PaymentFailed event")
		return err
	}

	if e.CustomerEmail == "" {
		return nil
	}

	if err := h.emailService.SendPaymentFailed(e.CustomerEmail, e.OrderID); err != nil {
		log.Error().Err(err).Str("order_id", e.OrderID).Msg("failed to send payment failure email")
		return err
	}

	log.Info().Str("order_id", e.OrderID).Str("gateway", e.Gateway).Msg("payment failure email sent")
	return nil
}
