package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/example/ht-marketplace/internal/api/middleware"
	"github.com/example/ht-marketplace/internal/auth"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(jwtService)
	optionalAuth := middleware.OptionalAuth(jwtService)
	requireSeller := func(next http.Handler) http.Handler {
		return requireAuth(middleware.RequireRole("seller")(next))
	}

	// Operational endpoints
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Payment gateway callback, authenticated by signature not JWT
	mux.HandleFunc("/webhooks/moncash", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.HandleMonCashWebhook(w, r)
	})

	// Products
	mux.Handle("/products", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		case http.MethodPost:
			requireSeller(http.HandlerFunc(handlers.CreateProduct)).ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/products/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/stock") && r.Method == http.MethodGet:
			handlers.GetProductStock(w, r)
		case strings.HasSuffix(path, "/deactivate") && r.Method == http.MethodPost:
			requireSeller(http.HandlerFunc(handlers.DeactivateProduct)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/restock") && r.Method == http.MethodPost:
			requireSeller(http.HandlerFunc(handlers.AddProductStock)).ServeHTTP(w, r)
		case r.Method == http.MethodPut:
			requireSeller(http.HandlerFunc(handlers.UpdateProduct)).ServeHTTP(w, r)
		case r.Method == http.MethodGet:
			handlers.GetProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	// Cart, available to both authenticated buyers and anonymous sessions
	mux.Handle("/cart", optionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetCart(w, r)
		case http.MethodDelete:
			handlers.ClearCart(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/cart/items", optionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.AddToCart(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/cart/items/", optionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			handlers.UpdateCartItem(w, r)
		case http.MethodDelete:
			handlers.RemoveFromCart(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Checkout works for anonymous sessions too; the address carries the
	// contact details
	mux.Handle("/checkout", optionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.Checkout(w, r)
	})))

	// Orders
	mux.Handle("/orders", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrders(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/orders/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/cancel") && r.Method == http.MethodPost:
			handlers.CancelOrder(w, r)
		case strings.HasSuffix(path, "/history") && r.Method == http.MethodGet:
			handlers.GetOrderHistory(w, r)
		case strings.HasSuffix(path, "/verify-payment") && r.Method == http.MethodPost:
			handlers.VerifyPayment(w, r)
		case strings.HasSuffix(path, "/processing") && r.Method == http.MethodPost:
			middleware.RequireRole("seller")(http.HandlerFunc(handlers.MarkOrderProcessing)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/ship") && r.Method == http.MethodPost:
			middleware.RequireRole("seller")(http.HandlerFunc(handlers.MarkOrderShipped)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/deliver") && r.Method == http.MethodPost:
			middleware.RequireRole("seller")(http.HandlerFunc(handlers.MarkOrderDelivered)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/refund") && r.Method == http.MethodPost:
			middleware.RequireRole("seller")(http.HandlerFunc(handlers.RefundOrder)).ServeHTTP(w, r)
		case r.Method == http.MethodGet:
			handlers.GetOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	return middleware.RequestLogger(logger)(mux)
}
