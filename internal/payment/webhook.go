package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "X-MonCash-Signature"

// WebhookPayload is the gateway's status notification. Amount is in
// centimes, matching the transaction record.
type WebhookPayload struct {
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

func (p *WebhookPayload) valid() bool {
	return p.TransactionID != "" && p.OrderID != "" && p.Status != ""
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature authenticates an inbound webhook body. Constant-time
// comparison; an empty or undecodable signature never passes.
func VerifySignature(secret, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil || len(want) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func parsePayload(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrBadPayload
	}
	if !p.valid() {
		return nil, ErrBadPayload
	}
	return &p, nil
}
