package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/example/ht-marketplace/internal/payment"
)

// maxWebhookBody caps how much of a delivery we read.
const maxWebhookBody = 1 << 20

// HandleMonCashWebhook processes gateway status notifications. The
// response is kept fast and small; the gateway only cares about the
// status code.
func (h *Handlers) HandleMonCashWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get(payment.SignatureHeader)
	txn, err := h.payments.HandleWebhook(r.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrWebhookAuth):
			respondError(w, "invalid signature", http.StatusUnauthorized)
		case errors.Is(err, payment.ErrBadPayload), errors.Is(err, payment.ErrAmountMismatch):
			respondError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, payment.ErrTransactionNotFound):
			respondError(w, err.Error(), http.StatusNotFound)
		default:
			respondError(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"transaction_id": txn.ID,
		"status":         string(txn.Status),
	})
}
