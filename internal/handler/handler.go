// Package handler implements the checkout HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/order"
	"github.com/xenking/hawker-checkout/internal/domain/payment"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

// CheckoutService turns a cart into an order.
type CheckoutService interface {
	CreateFromCart(ctx context.Context, userID string) (*order.Order, error)
}

// OrderService answers order queries for a user.
type OrderService interface {
	Details(ctx context.Context, userID, orderID string) (*order.Details, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
}

// PaymentService drives QR payments.
type PaymentService interface {
	RequestQR(ctx context.Context, userID, orderID string) (*payment.Payload, error)
	QueryStatus(ctx context.Context, userID, orderID, retrievalRef string, final bool) (*payment.QueryResult, error)
}

// CartService manages carts.
type CartService interface {
	Lines(ctx context.Context, userID string) ([]cart.Line, error)
	AddItem(ctx context.Context, req cart.AddItemRequest) (*cart.AddItemResult, error)
	Clear(ctx context.Context, userID string) error
}

// VoucherService manages voucher selection.
type VoucherService interface {
	Select(ctx context.Context, userID, userVoucherID string) (*voucher.Selection, error)
	Pending(ctx context.Context, userID string) (*voucher.Charge, error)
	Clear(ctx context.Context, userID string) error
	ListForUser(ctx context.Context, userID string) ([]voucher.Holding, error)
}

// Services bundles the domain dependencies of the Handler.
type Services struct {
	Checkout CheckoutService
	Orders   OrderService
	Payments PaymentService
	Carts    CartService
	Vouchers VoucherService
}

// Handler serves the /api routes.
type Handler struct {
	checkout CheckoutService
	orders   OrderService
	payments PaymentService
	carts    CartService
	vouchers VoucherService
	metrics  *Metrics
}

// NewHandler constructs a Handler. metrics may be nil.
func NewHandler(svc Services, metrics *Metrics) *Handler {
	return &Handler{
		checkout: svc.Checkout,
		orders:   svc.Orders,
		payments: svc.Payments,
		carts:    svc.Carts,
		vouchers: svc.Vouchers,
		metrics:  metrics,
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/payment/request", h.RequestPayment)
	mux.HandleFunc("POST /api/orders/{id}/payment/query", h.QueryPayment)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddCartItem)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)

	mux.HandleFunc("GET /api/vouchers", h.ListVouchers)
	mux.HandleFunc("GET /api/vouchers/pending", h.GetPendingVoucher)
	mux.HandleFunc("DELETE /api/vouchers/pending", h.ClearPendingVoucher)
	mux.HandleFunc("POST /api/vouchers/{id}/apply", h.ApplyVoucher)
}
