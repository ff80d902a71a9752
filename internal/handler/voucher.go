package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

// ListVouchers returns every voucher granted to the caller.
func (h *Handler) ListVouchers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holdings, err := h.vouchers.ListForUser(ctx, UserID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range holdings {
				encodeHolding(e, &holdings[i])
			}
		})
	})
}

// GetPendingVoucher returns the voucher selected for the next checkout.
func (h *Handler) GetPendingVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.vouchers.Pending(ctx, UserID(ctx))
	if err != nil {
		fail(w, r, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "no pending voucher")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCharge(e, c)
	})
}

// ClearPendingVoucher deselects the pending voucher, if any.
func (h *Handler) ClearPendingVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.vouchers.Clear(ctx, UserID(ctx)); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyVoucher selects a voucher for the caller's next checkout and
// previews the discount against the current cart.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sel, err := h.vouchers.Select(ctx, UserID(ctx), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}

	ev := sel.Evaluation
	h.metrics.voucherApplied(ctx, ev.Eligible)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("charge", func(e *jx.Encoder) { encodeCharge(e, &sel.Charge) })
			e.Field("eligible", func(e *jx.Encoder) { e.Bool(ev.Eligible) })
			if ev.Reason != "" {
				e.Field("reason", func(e *jx.Encoder) { e.Str(string(ev.Reason)) })
			}
			e.Field("subtotalCents", func(e *jx.Encoder) { e.Int64(ev.SubtotalCents) })
			e.Field("minSpendCents", func(e *jx.Encoder) { e.Int64(ev.MinSpendCents) })
			e.Field("discountCents", func(e *jx.Encoder) { e.Int64(ev.DiscountCents) })
		})
	})
}

func encodeCharge(e *jx.Encoder, c *voucher.Charge) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.ID) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(c.Type)) })
		e.Field("amountCents", func(e *jx.Encoder) { e.Int64(c.AmountCents) })
		e.Field("userVoucherId", func(e *jx.Encoder) { e.Str(c.UserVoucherID) })
		e.Field("pending", func(e *jx.Encoder) { e.Bool(c.Pending()) })
	})
}
