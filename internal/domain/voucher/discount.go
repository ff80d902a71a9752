package voucher

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Ineligibility explains why an authorized voucher grants no discount yet.
type Ineligibility string

const (
	IneligibleEmptyCart Ineligibility = "empty_cart"
	IneligibleMinSpend  Ineligibility = "min_spend"
)

// Evaluation is the result of previewing a voucher against a cart subtotal.
type Evaluation struct {
	Eligible      bool
	Reason        Ineligibility
	SubtotalCents int64
	MinSpendCents int64
	DiscountCents int64
}

// Discount returns the discount in cents that v grants on baseCents.
// Percentages round half away from zero; the result never exceeds baseCents.
func Discount(v Voucher, baseCents int64) (int64, error) {
	if baseCents <= 0 {
		return 0, nil
	}

	var amount decimal.Decimal
	switch v.DiscountType {
	case DiscountPercentage:
		amount = decimal.NewFromInt(baseCents).Mul(v.DiscountAmount).Div(hundred)
	case DiscountFixed:
		amount = v.DiscountAmount
	default:
		return 0, errors.Errorf("unsupported discount type: %q", v.DiscountType)
	}

	cents := amount.Round(0).IntPart()
	if cents < 0 {
		return 0, nil
	}
	return min(cents, baseCents), nil
}

// Authorize checks that userID may redeem uv at now. It does not check
// whether the voucher is reserved by another order.
func Authorize(uv *UserVoucher, userID string, now time.Time) error {
	var reason error
	switch {
	case uv.UserID != userID:
		reason = ErrNotOwned
	case uv.IsUsed:
		reason = ErrUsed
	case uv.Expired(now):
		reason = ErrExpired
	default:
		return nil
	}
	return &AuthorizationError{UserVoucherID: uv.ID, Reason: reason}
}

// Preview evaluates uv for userID against a cart subtotal without side effects.
// An AuthorizationError is returned when the user may not redeem the voucher;
// an unmet minimum spend or empty cart yields an ineligible Evaluation.
func Preview(uv *UserVoucher, userID string, subtotalCents int64, now time.Time) (Evaluation, error) {
	if err := Authorize(uv, userID, now); err != nil {
		return Evaluation{}, err
	}

	eval := Evaluation{
		SubtotalCents: subtotalCents,
		MinSpendCents: uv.Voucher.MinSpendCents,
	}
	switch {
	case subtotalCents <= 0:
		eval.Reason = IneligibleEmptyCart
		return eval, nil
	case subtotalCents < uv.Voucher.MinSpendCents:
		eval.Reason = IneligibleMinSpend
		return eval, nil
	}

	amount, err := Discount(uv.Voucher, subtotalCents)
	if err != nil {
		return Evaluation{}, err
	}
	eval.Eligible = true
	eval.DiscountCents = amount
	return eval, nil
}
