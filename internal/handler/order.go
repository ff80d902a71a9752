package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// CreateOrder checks out the caller's cart.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.checkout.CreateFromCart(ctx, UserID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.metrics.orderCreated(ctx, o.StallID)

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
			e.Field("orderCode", func(e *jx.Encoder) { e.Str(o.Code) })
			e.Field("totalCents", func(e *jx.Encoder) { e.Int64(o.TotalCents) })
			e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		})
	})
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, err := h.orders.ListForUser(ctx, UserID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrderSummary(e, &orders[i])
			}
		})
	})
}

// GetOrder returns one of the caller's orders with its price breakdown.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.orders.Details(ctx, UserID(ctx), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrderDetails(e, d)
	})
}
