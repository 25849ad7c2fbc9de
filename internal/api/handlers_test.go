package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ht-marketplace/internal/api"
	"github.com/example/ht-marketplace/internal/auth"
	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/domain/order"
	"github.com/example/ht-marketplace/internal/domain/stock"
	"github.com/example/ht-marketplace/internal/infrastructure/session"
	"github.com/example/ht-marketplace/internal/infrastructure/store/memory"
	"github.com/example/ht-marketplace/internal/payment"
)

const webhookSecret = "test-webhook-secret"

type env struct {
	ms     *memory.Store
	jwt    *auth.JWTService
	server http.Handler
}

type fakeGateway struct{}

func (fakeGateway) CreatePayment(ctx context.Context, orderID string, amount int64) (*payment.PaymentIntent, error) {
	return &payment.PaymentIntent{
		Token:       "tok-" + orderID,
		RedirectURL: "https://gw.example/Payment/Redirect?token=tok-" + orderID,
	}, nil
}

func (fakeGateway) VerifyPayment(ctx context.Context, gatewayTxnID string) (payment.Status, error) {
	return payment.StatusInitiated, nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ms := memory.New()
	jwtSvc := auth.NewJWTService("test-secret-key", 15*time.Minute)

	stockMgr := stock.NewManager(ms.Products())
	catalogSvc := catalog.NewService(ms.Products())
	cartSvc := cart.NewService(ms.Carts(), ms.Products(), stockMgr)
	orderSvc := order.NewService(ms.Orders(), nil)
	paymentSvc := payment.NewService(fakeGateway{}, ms.Transactions(), ms.Transactions(), orderSvc, webhookSecret)

	handlers := api.NewHandlers(catalogSvc, cartSvc, orderSvc, paymentSvc, session.NewMemoryStore())
	router := api.NewRouter(handlers, jwtSvc, zerolog.Nop())

	return &env{ms: ms, jwt: jwtSvc, server: router}
}

func (e *env) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := e.jwt.GenerateToken(userID, userID+"@example.ht", role)
	require.NoError(t, err)
	return token
}

func (e *env) do(t *testing.T, method, path, token string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *env) seedProduct(t *testing.T, id string, price int64, stockQty int) {
	t.Helper()
	err := e.ms.Products().Insert(context.Background(), &catalog.Product{
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

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProduct_RequiresSellerRole(t *testing.T) {
	e := newEnv(t)
	body := map[string]any{"name": "Mango Francique", "price": 15000, "stock_quantity": 50}

	rec := e.do(t, http.MethodPost, "/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/products", e.token(t, "buyer-1", "buyer"), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/products", e.token(t, "seller-1", "seller"), body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var p catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "seller-1", p.SellerID)
}

func TestGetProductStock_HidesReservedCounter(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 10)

	ok, err := e.ms.Products().Reserve(context.Background(), "p1", 6)
	require.NoError(t, err)
	require.True(t, ok)

	rec := e.do(t, http.MethodGet, "/products/p1/stock?quantity=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status catalog.StockStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 4, status.Available)
	assert.Equal(t, catalog.LabelLowStock, status.Label)
	assert.False(t, status.CanFulfill)
	assert.NotContains(t, rec.Body.String(), "reserved_quantity")
}

func TestAnonymousCart_SessionCookie(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 10)

	rec := e.do(t, http.MethodPost, "/cart/items", "", map[string]any{"product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "cart_session" {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie, "anonymous add should mint a session cookie")

	// the same session sees its cart
	rec = e.do(t, http.MethodGet, "/cart", "", nil, sessionCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "p1")

	// a stranger does not
	rec = e.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthenticatedCartFlow(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 50000, 10)
	token := e.token(t, "buyer-1", "buyer")

	rec := e.do(t, http.MethodPost, "/cart/items", token, map[string]any{"product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []cart.Item `json:"items"`
		Total int64       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(100000), resp.Total)

	// oversell rejected with 409
	rec = e.do(t, http.MethodPost, "/cart/items", token, map[string]any{"product_id": "p1", "quantity": 20})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckout_MonCashRedirect(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 50000, 10)
	token := e.token(t, "buyer-1", "buyer")

	rec := e.do(t, http.MethodPost, "/cart/items", token, map[string]any{"product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/checkout", token, map[string]any{
		"payment_method": "moncash",
		"address": map[string]string{
			"full_name":  "Jean Baptiste",
			"phone":      "+509 3456 7890",
			"email":      "jean@example.ht",
			"street":     "4 Rue Pavee",
			"city":       "Cap-Haitien",
			"department": "Nord",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result payment.InitiateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, order.StatusPendingPayment, result.Order.Status)
	assert.Contains(t, result.RedirectURL, "Payment/Redirect")
}

func TestCartGone_MutationsReportExpired(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 50000, 10)
	token := e.token(t, "buyer-1", "buyer")

	rec := e.do(t, http.MethodPut, "/cart/items/p1", token, map[string]any{"quantity": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cart has expired")

	rec = e.do(t, http.MethodDelete, "/cart/items/p1", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cart has expired")
}

func TestCheckout_SweptCartReportsExpired(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, "buyer-1", "buyer")

	rec := e.do(t, http.MethodPost, "/checkout", token, map[string]any{
		"payment_method": "moncash",
		"address": map[string]string{
			"full_name":  "Jean Baptiste",
			"phone":      "+509 3456 7890",
			"city":       "Cap-Haitien",
			"department": "Nord",
		},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "cart has expired")
}

func TestCheckout_Validation(t *testing.T) {
	e := newEnv(t)
	token := e.token(t, "buyer-1", "buyer")

	rec := e.do(t, http.MethodPost, "/checkout", token, map[string]any{
		"payment_method": "bitcoin",
		"address":        map[string]string{"full_name": "X", "phone": "1", "city": "PAP", "department": "Ouest"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/checkout", token, map[string]any{
		"payment_method": "moncash",
		"address":        map[string]string{"full_name": "X"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookEndpoint(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 50000, 10)
	token := e.token(t, "buyer-1", "buyer")

	rec := e.do(t, http.MethodPost, "/cart/items", token, map[string]any{"product_id": "p1", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, "/checkout", token, map[string]any{
		"payment_method": "moncash",
		"address": map[string]string{
			"full_name": "Jean Baptiste", "phone": "+509 3456 7890",
			"city": "Cap-Haitien", "department": "Nord",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result payment.InitiateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	body, err := json.Marshal(payment.WebhookPayload{
		TransactionID: result.Transaction.GatewayTxnID,
		OrderID:       result.Order.ID,
		Amount:        result.Order.Total,
		Status:        "successful",
	})
	require.NoError(t, err)

	// bad signature is rejected and changes nothing
	req := httptest.NewRequest(http.MethodPost, "/webhooks/moncash", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, "deadbeef")
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	got, _ := e.ms.Order(result.Order.ID)
	require.Equal(t, order.StatusPendingPayment, got.Status)

	// valid signature confirms the order
	req = httptest.NewRequest(http.MethodPost, "/webhooks/moncash", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, payment.Sign([]byte(webhookSecret), body))
	w = httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got, _ = e.ms.Order(result.Order.ID)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestGetOrder_Authorization(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 50000, 10)
	buyer := e.token(t, "buyer-1", "buyer")

	rec := e.do(t, http.MethodPost, "/cart/items", buyer, map[string]any{"product_id": "p1", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, "/checkout", buyer, map[string]any{
		"payment_method": "cash_on_delivery",
		"address": map[string]string{
			"full_name": "Jean Baptiste", "phone": "+509 3456 7890",
			"city": "Cap-Haitien", "department": "Nord",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result payment.InitiateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	orderPath := fmt.Sprintf("/orders/%s", result.Order.ID)

	// owner can read
	rec = e.do(t, http.MethodGet, orderPath, buyer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// another buyer cannot
	rec = e.do(t, http.MethodGet, orderPath, e.token(t, "buyer-2", "buyer"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// a seller can
	rec = e.do(t, http.MethodGet, orderPath, e.token(t, "seller-1", "seller"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// unauthenticated gets 401
	rec = e.do(t, http.MethodGet, orderPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSellerTransitions(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 50000, 10)
	buyer := e.token(t, "buyer-1", "buyer")
	seller := e.token(t, "seller-1", "seller")

	rec := e.do(t, http.MethodPost, "/cart/items", buyer, map[string]any{"product_id": "p1", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, "/checkout", buyer, map[string]any{
		"payment_method": "cash_on_delivery",
		"address": map[string]string{
			"full_name": "Jean Baptiste", "phone": "+509 3456 7890",
			"city": "Cap-Haitien", "department": "Nord",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result payment.InitiateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	id := result.Order.ID

	// buyers cannot drive fulfilment
	rec = e.do(t, http.MethodPost, "/orders/"+id+"/ship", buyer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// seller walks the lifecycle
	rec = e.do(t, http.MethodPost, "/orders/"+id+"/processing", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, "/orders/"+id+"/ship", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(t, http.MethodPost, "/orders/"+id+"/deliver", seller, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// out of order transition is a conflict
	rec = e.do(t, http.MethodPost, "/orders/"+id+"/ship", seller, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// audit trail is visible to the owner
	rec = e.do(t, http.MethodGet, "/orders/"+id+"/history", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var log []order.StatusChange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &log))
	assert.Len(t, log, 5)
}
