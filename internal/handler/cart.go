package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
)

// GetCart returns the caller's cart lines and subtotal.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lines, err := h.carts.Lines(ctx, UserID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("lines", func(e *jx.Encoder) { encodeCartLines(e, lines) })
			e.Field("subtotalCents", func(e *jx.Encoder) { e.Int64(cart.Subtotal(lines)) })
		})
	})
}

// AddCartItem adds a menu item to the caller's cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := cart.AddItemRequest{UserID: UserID(ctx), Quantity: 1}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "menuItemId":
			req.MenuItemID, err = requiredString(d, key)
		case "quantity":
			req.Quantity, err = d.Int()
		case "request":
			req.Request, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if req.MenuItemID == "" {
		writeError(w, http.StatusBadRequest, "menuItemId is required")
		return
	}

	res, err := h.carts.AddItem(ctx, req)
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("line", func(e *jx.Encoder) { encodeCartLine(e, &res.Line) })
			e.Field("merged", func(e *jx.Encoder) { e.Bool(res.Merged) })
			e.Field("cleared", func(e *jx.Encoder) { encodeCartLines(e, res.Cleared) })
		})
	})
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.carts.Clear(ctx, UserID(ctx)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
