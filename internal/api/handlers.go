package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/example/ht-marketplace/internal/api/middleware"
	"github.com/example/ht-marketplace/internal/domain/cart"
	"github.com/example/ht-marketplace/internal/domain/catalog"
	"github.com/example/ht-marketplace/internal/domain/order"
	"github.com/example/ht-marketplace/internal/domain/stock"
	"github.com/example/ht-marketplace/internal/infrastructure/session"
	"github.com/example/ht-marketplace/internal/payment"
)

const sessionCookie = "cart_session"

// Handlers exposes the marketplace over HTTP.
type Handlers struct {
	catalog  *catalog.Service
	carts    *cart.Service
	orders   *order.Service
	payments *payment.Service
	sessions session.Store
}

func NewHandlers(catalogSvc *catalog.Service, cartSvc *cart.Service, orderSvc *order.Service, paymentSvc *payment.Service, sessions session.Store) *Handlers {
	return &Handlers{
		catalog:  catalogSvc,
		carts:    cartSvc,
		orders:   orderSvc,
		payments: paymentSvc,
		sessions: sessions,
	}
}

// Product Handlers

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock_quantity"`
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		respondError(w, "name is required", http.StatusBadRequest)
		return
	}

	sellerID := middleware.GetUserID(r.Context())
	p, err := h.catalog.Create(r.Context(), sellerID, req.Name, req.Description, req.Price, req.Stock)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if p.SellerID != middleware.GetUserID(r.Context()) {
		respondError(w, "forbidden", http.StatusForbidden)
		return
	}

	updated, err := h.catalog.Update(r.Context(), id, req.Name, req.Description, req.Price)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/products/"), "/deactivate")

	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if p.SellerID != middleware.GetUserID(r.Context()) {
		respondError(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.catalog.Deactivate(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "product deactivated"})
}

func (h *Handlers) AddProductStock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/products/"), "/restock")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if p.SellerID != middleware.GetUserID(r.Context()) {
		respondError(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.catalog.AddStock(r.Context(), id, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "stock added"})
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("seller_id")
	products, err := h.catalog.List(r.Context(), sellerID, true)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if products == nil {
		products = []*catalog.Product{}
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GetProductStock serves the availability view without exposing the
// raw reserved counter.
func (h *Handlers) GetProductStock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/products/"), "/stock")

	wantQty := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			respondError(w, "quantity must be a positive integer", http.StatusBadRequest)
			return
		}
		wantQty = n
	}

	status, err := h.catalog.StockStatus(r.Context(), id, wantQty)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.ownerID(w, r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	c, err := h.carts.Get(r.Context(), ownerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.ownerID(w, r, true)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		respondError(w, "product_id is required", http.StatusBadRequest)
		return
	}

	c, err := h.carts.AddItem(r.Context(), ownerID, req.ProductID, req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.ownerID(w, r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), ownerID, productID, req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.ownerID(w, r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	c, err := h.carts.RemoveItem(r.Context(), ownerID, productID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondCart(w, http.StatusOK, c)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.ownerID(w, r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := h.carts.Clear(r.Context(), ownerID); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout

type checkoutRequest struct {
	PaymentMethod string        `json:"payment_method"`
	Address       order.Address `json:"address"`
}

func (req *checkoutRequest) validate() string {
	switch order.PaymentMethod(req.PaymentMethod) {
	case order.MethodMonCash, order.MethodCashOnDelivery:
	default:
		return "payment_method must be moncash or cash_on_delivery"
	}
	if req.Address.FullName == "" || req.Address.Phone == "" {
		return "address full_name and phone are required"
	}
	if req.Address.City == "" || req.Address.Department == "" {
		return "address city and department are required"
	}
	return ""
}

// Checkout snapshots the cart into an order and initiates payment.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ownerID, err := h.ownerID(w, r, false)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, msg, http.StatusBadRequest)
		return
	}

	// A swept cart must read as expired here, not as an empty order.
	c, err := h.carts.GetExisting(r.Context(), ownerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	o, err := h.orders.Create(r.Context(), c, req.Address, order.PaymentMethod(req.PaymentMethod))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	result, err := h.payments.Initiate(r.Context(), o)
	if err != nil {
		// The order exists in pending_payment; surface it so the buyer
		// can retry the payment.
		if errors.Is(err, payment.ErrGatewayUnavailable) {
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error": "payment gateway unavailable, try again later",
				"order": o,
			})
			return
		}
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orders, err := h.orders.ListByUser(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")

	o, err := h.authorizeOrder(w, r, id)
	if err != nil {
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/history")

	if _, err := h.authorizeOrder(w, r, id); err != nil {
		return
	}
	log, err := h.orders.StatusLog(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if log == nil {
		log = []order.StatusChange{}
	}
	respondJSON(w, http.StatusOK, log)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/cancel")

	if _, err := h.authorizeOrder(w, r, id); err != nil {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	o, err := h.orders.Cancel(r.Context(), id, middleware.GetUserID(r.Context()), req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// VerifyPayment re-checks the gateway for an order's latest transaction;
// the fallback when a webhook never arrived.
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/verify-payment")

	if _, err := h.authorizeOrder(w, r, id); err != nil {
		return
	}

	txn, err := h.payments.VerifyOrder(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

// Seller fulfilment transitions

func (h *Handlers) MarkOrderProcessing(w http.ResponseWriter, r *http.Request) {
	h.sellerTransition(w, r, "/processing", h.orders.MarkProcessing)
}

func (h *Handlers) MarkOrderShipped(w http.ResponseWriter, r *http.Request) {
	h.sellerTransition(w, r, "/ship", h.orders.MarkShipped)
}

func (h *Handlers) MarkOrderDelivered(w http.ResponseWriter, r *http.Request) {
	h.sellerTransition(w, r, "/deliver", h.orders.MarkDelivered)
}

func (h *Handlers) RefundOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/refund")

	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.orders.Refund(r.Context(), id, middleware.GetUserID(r.Context()), req.Reason); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "order refunded"})
}

func (h *Handlers) sellerTransition(w http.ResponseWriter, r *http.Request, suffix string, fn func(ctx context.Context, orderID, actor string) error) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), suffix)

	if err := fn(r.Context(), id, middleware.GetUserID(r.Context())); err != nil {
		respondDomainError(w, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// ownerID resolves the cart owner: the authenticated user, an existing
// anonymous session, or (when mint is set) a freshly minted session
// delivered as a cookie.
func (h *Handlers) ownerID(w http.ResponseWriter, r *http.Request, mint bool) (string, error) {
	if userID := middleware.GetUserID(r.Context()); userID != "" {
		return userID, nil
	}

	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := h.sessions.Touch(r.Context(), cookie.Value); err == nil {
			return "anon-" + cookie.Value, nil
		} else if !errors.Is(err, session.ErrSessionNotFound) {
			return "", err
		}
	}

	if !mint {
		return "", errNoSession
	}

	id, err := h.sessions.New(r.Context())
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return "anon-" + id, nil
}

func (h *Handlers) authorizeOrder(w http.ResponseWriter, r *http.Request, id string) (*order.Order, error) {
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return nil, err
	}

	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return nil, errForbidden
	}
	if o.UserID != claims.UserID && claims.Role != "seller" {
		respondError(w, "forbidden", http.StatusForbidden)
		return nil, errForbidden
	}
	return o, nil
}

// Helpers

var (
	errNoSession = errors.New("no cart session")
	errForbidden = errors.New("forbidden")
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondCart flattens the item map into a list and includes the total.
func respondCart(w http.ResponseWriter, status int, c *cart.Cart) {
	items := make([]cart.Item, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	respondJSON(w, status, map[string]any{
		"owner_id":   c.OwnerID,
		"items":      items,
		"total":      c.Total(),
		"updated_at": c.UpdatedAt,
	})
}

// respondDomainError maps domain errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, payment.ErrTransactionNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, stock.ErrInsufficientStock):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrAlreadyConfirmed),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrCancelAfterShipment):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, cart.ErrExpired),
		errors.Is(err, cart.ErrCartNotFound):
		respondError(w, "cart has expired, please rebuild it", http.StatusConflict)
	case errors.Is(err, order.ErrEmptyOrder):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct),
		errors.Is(err, catalog.ErrInvalidPrice),
		errors.Is(err, catalog.ErrInvalidStock),
		errors.Is(err, catalog.ErrProductInactive):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		respondError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, errNoSession):
		respondError(w, "no cart session", http.StatusNotFound)
	default:
		respondError(w, "internal error", http.StatusInternalServerError)
	}
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
