package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_orders_created_total",
		Help: "Orders created from carts.",
	})

	PaymentsConfirmed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_payments_confirmed_total",
		Help: "Payments confirmed, by gateway.",
	}, []string{"gateway"})

	WebhooksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_webhooks_rejected_total",
		Help: "Webhook deliveries rejected for a bad signature.",
	})

	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_reservation_conflicts_total",
		Help: "Stock reservations refused for insufficient availability.",
	})

	CartsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_carts_expired_total",
		Help: "Idle carts swept and their reservations released.",
	})
)
