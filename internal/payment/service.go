package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/example/ht-marketplace/internal/domain/order"
	"github.com/example/ht-marketplace/internal/metrics"
)

// Service coordinates payment attempts, webhook processing and manual
// verification against the order state machine.
type Service struct {
	gateway       Gateway
	txns          Store
	events        EventStore
	orders        *order.Service
	webhookSecret []byte
}

func NewService(gateway Gateway, txns Store, events EventStore, orders *order.Service, webhookSecret string) *Service {
	return &Service{
		gateway:       gateway,
		txns:          txns,
		events:        events,
		orders:        orders,
		webhookSecret: []byte(webhookSecret),
	}
}

// InitiateResult is the checkout outcome: either a redirect to the
// gateway or an immediately confirmed cash-on-delivery order.
type InitiateResult struct {
	Order       *order.Order `json:"order"`
	Transaction *Transaction `json:"transaction"`
	RedirectURL string       `json:"redirect_url,omitempty"`
}

// Initiate starts payment for a freshly created order. Cash on delivery
// bypasses the external gateway entirely: the order is confirmed on the
// spot with a locally recorded pseudo-transaction.
func (s *Service) Initiate(ctx context.Context, o *order.Order) (*InitiateResult, error) {
	now := time.Now()

	if o.PaymentMethod == order.MethodCashOnDelivery {
		txn := &Transaction{
			ID:           uuid.New().String(),
			OrderID:      o.ID,
			Gateway:      GatewayCashOnDelivery,
			GatewayTxnID: "cod-" + o.ID,
			Amount:       o.Total,
			Status:       StatusSuccessful,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.txns.Insert(ctx, txn); err != nil {
			return nil, err
		}
		confirmed, err := s.orders.ConfirmPayment(ctx, o.ID, "system:cod")
		if err != nil {
			return nil, err
		}
		metrics.PaymentsConfirmed.WithLabelValues(GatewayCashOnDelivery).Inc()
		return &InitiateResult{Order: confirmed, Transaction: txn}, nil
	}

	intent, err := s.gateway.CreatePayment(ctx, o.ID, o.Total)
	if err != nil {
		// The order stays pending_payment; the buyer can retry or the
		// transaction can be verified later.
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	txn := &Transaction{
		ID:           uuid.New().String(),
		OrderID:      o.ID,
		Gateway:      GatewayMonCash,
		GatewayTxnID: intent.Token,
		Amount:       o.Total,
		Status:       StatusInitiated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.txns.Insert(ctx, txn); err != nil {
		return nil, err
	}
	return &InitiateResult{Order: o, Transaction: txn, RedirectURL: intent.RedirectURL}, nil
}

// HandleWebhook authenticates and applies a gateway status notification.
// Unauthenticated payloads never mutate state: they are recorded for
// operator review and rejected. Replaying a delivery for an already
// successful transaction is a no-op.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*Transaction, error) {
	sigOK := VerifySignature(s.webhookSecret, body, signature)

	// Parse best-effort so the operator record carries whatever the
	// payload claimed, even on a bad signature.
	payload, parseErr := parsePayload(body)

	ev := &WebhookEvent{
		ID:          uuid.New().String(),
		Payload:     body,
		SignatureOK: sigOK,
		ReceivedAt:  time.Now(),
	}
	if payload != nil {
		ev.GatewayTxnID = payload.TransactionID
		ev.OrderID = payload.OrderID
		ev.Status = payload.Status
	}
	if err := s.events.Record(ctx, ev); err != nil {
		log.Error().Err(err).Msg("failed to record webhook event")
	}

	if !sigOK {
		metrics.WebhooksRejected.Inc()
		log.Warn().Str("gateway_txn_id", ev.GatewayTxnID).Str("order_id", ev.OrderID).
			Msg("rejected webhook with invalid signature")
		return nil, ErrWebhookAuth
	}
	if parseErr != nil {
		return nil, parseErr
	}

	txn, err := s.txns.GetByGatewayTxnID(ctx, payload.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn.OrderID != payload.OrderID {
		return nil, fmt.Errorf("%w: order %s does not match transaction", ErrBadPayload, payload.OrderID)
	}
	if txn.Amount != payload.Amount {
		log.Warn().Str("gateway_txn_id", txn.GatewayTxnID).
			Int64("expected", txn.Amount).Int64("got", payload.Amount).
			Msg("webhook amount mismatch")
		return nil, ErrAmountMismatch
	}

	return s.applyGatewayStatus(ctx, txn, Status(payload.Status))
}

// VerifyOrder re-checks the order's latest payment attempt against the
// gateway; the fallback path when a webhook was lost.
func (s *Service) VerifyOrder(ctx context.Context, orderID string) (*Transaction, error) {
	txn, err := s.txns.LatestByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, txn)
}

// Verify queries the gateway for the transaction's current status and
// applies it.
func (s *Service) Verify(ctx context.Context, gatewayTxnID string) (*Transaction, error) {
	txn, err := s.txns.GetByGatewayTxnID(ctx, gatewayTxnID)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, txn)
}

func (s *Service) verify(ctx context.Context, txn *Transaction) (*Transaction, error) {
	if txn.Status == StatusSuccessful {
		return txn, nil
	}
	if txn.Gateway == GatewayCashOnDelivery {
		return txn, nil
	}

	status, err := s.gateway.VerifyPayment(ctx, txn.GatewayTxnID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return s.applyGatewayStatus(ctx, txn, status)
}

func (s *Service) applyGatewayStatus(ctx context.Context, txn *Transaction, status Status) (*Transaction, error) {
	// Idempotency: a successful transaction is terminal, replays are
	// no-ops with no second stock commit.
	if txn.Status == StatusSuccessful {
		return txn, nil
	}

	switch status {
	case StatusSuccessful:
		if _, err := s.orders.ConfirmPayment(ctx, txn.OrderID, "gateway:"+txn.Gateway); err != nil {
			// A retried delivery can land after the order confirmed but
			// before the transaction row was updated; converge instead
			// of failing.
			if !errors.Is(err, order.ErrAlreadyConfirmed) {
				return nil, err
			}
		} else {
			metrics.PaymentsConfirmed.WithLabelValues(txn.Gateway).Inc()
		}
		if err := s.txns.UpdateStatus(ctx, txn.ID, StatusSuccessful); err != nil {
			return nil, err
		}
		txn.Status = StatusSuccessful
	case StatusFailed:
		if err := s.txns.UpdateStatus(ctx, txn.ID, StatusFailed); err != nil {
			return nil, err
		}
		txn.Status = StatusFailed
		s.orders.NotifyPaymentFailed(ctx, txn.OrderID, txn.Gateway)
	case StatusInitiated:
		// still pending at the gateway, nothing to apply
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadPayload, status)
	}
	txn.UpdatedAt = time.Now()
	return txn, nil
}
