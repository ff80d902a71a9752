package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// RequestPayment issues a payment QR for a pending order.
func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.payments.RequestQR(ctx, UserID(ctx), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	h.metrics.qrIssued(ctx)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePayload(e, p)
	})
}

// QueryPayment asks the gateway for the status of an issued QR and
// confirms the order on success.
func (h *Handler) QueryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		ref   string
		final bool
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "txnRetrievalRef":
			ref, err = requiredString(d, key)
		case "final":
			final, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	if ref == "" {
		writeError(w, http.StatusBadRequest, "txnRetrievalRef is required")
		return
	}

	res, err := h.payments.QueryStatus(ctx, UserID(ctx), r.PathValue("id"), ref, final)
	if err != nil {
		fail(w, r, err)
		return
	}
	if res.Confirmed {
		h.metrics.paymentConfirmed(ctx)
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("confirmed", func(e *jx.Encoder) { e.Bool(res.Confirmed) })
			e.Field("payload", func(e *jx.Encoder) { encodePayload(e, res.Payload) })
		})
	})
}
