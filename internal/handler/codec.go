package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/order"
	"github.com/xenking/hawker-checkout/internal/domain/payment"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

const maxBodyBytes = 64 << 10

// badRequestError marks malformed request bodies.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

// decodeBody reads a JSON object from r and calls field for every key. An
// empty body is treated as an empty object.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &badRequestError{err: err}
	}
	if len(data) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return &badRequestError{err: err}
	}
	return nil
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	encodeTime(e, *t)
}

func encodePayload(e *jx.Encoder, p *payment.Payload) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("responseCode", func(e *jx.Encoder) { e.Str(p.ResponseCode) })
		e.Field("txnStatus", func(e *jx.Encoder) { e.Int(p.TxnStatus) })
		if p.QRCode != "" {
			e.Field("qrCode", func(e *jx.Encoder) { e.Str(p.QRCode) })
		}
		e.Field("txnRetrievalRef", func(e *jx.Encoder) { e.Str(p.RetrievalRef) })
		e.Field("networkStatus", func(e *jx.Encoder) { e.Int(p.NetworkStatus) })
		e.Field("instruction", func(e *jx.Encoder) { e.Str(p.Instruction) })
	})
}

func encodeOrderSummary(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, o)
	})
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("orderCode", func(e *jx.Encoder) { e.Str(o.Code) })
	e.Field("stallId", func(e *jx.Encoder) { e.Str(o.StallID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("orderStatus", func(e *jx.Encoder) { e.Str(string(o.FulfillmentStatus)) })
	e.Field("totalCents", func(e *jx.Encoder) { e.Int64(o.TotalCents) })
	e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
}

func encodeOrderDetails(e *jx.Encoder, d *order.Details) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, &d.Order)
		e.Field("stall", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(d.Stall.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(d.Stall.Name) })
			})
		})
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range d.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("menuItemId", func(e *jx.Encoder) { e.Str(it.MenuItemID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("lineCents", func(e *jx.Encoder) { e.Int64(it.LineCents) })
						e.Field("request", func(e *jx.Encoder) { e.Str(it.Request) })
					})
				}
			})
		})
		e.Field("subtotalCents", func(e *jx.Encoder) { e.Int64(d.SubtotalCents) })
		e.Field("serviceFeeCents", func(e *jx.Encoder) { e.Int64(d.ServiceFeeCents) })
		e.Field("voucherCents", func(e *jx.Encoder) { e.Int64(d.VoucherCents) })
	})
}

func encodeCartLine(e *jx.Encoder, l *cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(l.ID) })
		e.Field("menuItemId", func(e *jx.Encoder) { e.Str(l.MenuItemID) })
		e.Field("stallId", func(e *jx.Encoder) { e.Str(l.StallID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("unitPriceCents", func(e *jx.Encoder) { e.Int64(l.UnitPriceCents) })
		e.Field("lineCents", func(e *jx.Encoder) { e.Int64(l.TotalCents()) })
		e.Field("request", func(e *jx.Encoder) { e.Str(l.Request) })
	})
}

func encodeCartLines(e *jx.Encoder, lines []cart.Line) {
	e.Arr(func(e *jx.Encoder) {
		for i := range lines {
			encodeCartLine(e, &lines[i])
		}
	})
}

func encodeHolding(e *jx.Encoder, h *voucher.Holding) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(h.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(h.Voucher.Code) })
		e.Field("description", func(e *jx.Encoder) { e.Str(h.Voucher.Description) })
		e.Field("discountType", func(e *jx.Encoder) { e.Str(string(h.Voucher.DiscountType)) })
		e.Field("discountAmount", func(e *jx.Encoder) { e.Str(h.Voucher.DiscountAmount.String()) })
		e.Field("minSpendCents", func(e *jx.Encoder) { e.Int64(h.Voucher.MinSpendCents) })
		e.Field("isUsed", func(e *jx.Encoder) { e.Bool(h.IsUsed) })
		e.Field("expiry", func(e *jx.Encoder) { encodeOptTime(e, h.Expiry) })
		e.Field("isExpired", func(e *jx.Encoder) { e.Bool(h.Expired) })
	})
}

func requiredString(d *jx.Decoder, name string) (string, error) {
	s, err := d.Str()
	if err != nil {
		return "", errors.Wrapf(err, "%s", name)
	}
	return s, nil
}
