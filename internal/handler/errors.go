package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/order"
	"github.com/xenking/hawker-checkout/internal/domain/payment"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

// fail maps a domain error to an HTTP error response.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}

func statusFor(err error) (int, string) {
	var (
		badReq  *badRequestError
		authErr *voucher.AuthorizationError
		extErr  *payment.ExternalServiceError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, badReq.Error()
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, cart.ErrMenuItemNotFound):
		return http.StatusNotFound, "menu item not found"
	case errors.As(err, &authErr):
		switch {
		case errors.Is(err, voucher.ErrNotFound):
			return http.StatusNotFound, "voucher not found"
		case errors.Is(err, voucher.ErrReserved):
			return http.StatusConflict, authErr.Reason.Error()
		}
		return http.StatusForbidden, authErr.Reason.Error()
	case errors.Is(err, payment.ErrNotPending),
		errors.Is(err, payment.ErrRefMismatch),
		errors.Is(err, payment.ErrSessionNotFound):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payment.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid order amount"
	case errors.As(err, &extErr):
		return http.StatusBadGateway, "payment unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
