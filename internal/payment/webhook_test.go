package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"transactionId":"txn-1","orderId":"order-1","amount":1000,"status":"successful"}`)

	sig := Sign(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))
}

func TestVerifySignature_TamperedBody(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"amount":1000}`)
	sig := Sign(secret, body)

	tampered := []byte(`{"amount":9999}`)
	assert.False(t, VerifySignature(secret, tampered, sig))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	body := []byte(`{}`)
	sig := Sign([]byte("secret-a"), body)
	assert.False(t, VerifySignature([]byte("secret-b"), body, sig))
}

func TestVerifySignature_BadSignatures(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{}`)

	assert.False(t, VerifySignature(secret, body, ""))
	assert.False(t, VerifySignature(secret, body, "not-hex"))
	assert.False(t, VerifySignature(secret, body, "deadbeef"))
}

func TestParsePayload(t *testing.T) {
	p, err := parsePayload([]byte(`{"transactionId":"t1","orderId":"o1","amount":500,"status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, "t1", p.TransactionID)
	assert.Equal(t, "o1", p.OrderID)
	assert.Equal(t, int64(500), p.Amount)
	assert.Equal(t, "failed", p.Status)
}

func TestParsePayload_Invalid(t *testing.T) {
	_, err := parsePayload([]byte(`not json`))
	assert.ErrorIs(t, err, ErrBadPayload)

	// missing required fields
	_, err = parsePayload([]byte(`{"amount":500}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}
