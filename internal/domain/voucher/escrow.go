package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
)

// Selection is the outcome of selecting a voucher for the next checkout.
type Selection struct {
	Charge      Charge
	UserVoucher UserVoucher
	Evaluation  Evaluation
}

// Holding is a user voucher as listed to its owner.
type Holding struct {
	UserVoucher
	Expiry  *time.Time
	Expired bool
}

// Escrow holds at most one provisionally selected voucher per user and
// converts it into an order discount at checkout.
type Escrow struct {
	store Store
	tx    Transactor
	carts cart.Repository
	now   func() time.Time
}

// NewEscrow creates an Escrow.
func NewEscrow(store Store, tx Transactor, carts cart.Repository) *Escrow {
	return &Escrow{
		store: store,
		tx:    tx,
		carts: carts,
		now:   time.Now,
	}
}

// Select replaces the user's pending voucher with userVoucherID and previews
// it against the current cart. An ineligible preview is still stored, since
// the cart may change before checkout.
func (e *Escrow) Select(ctx context.Context, userID, userVoucherID string) (*Selection, error) {
	lines, err := e.carts.LinesForUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	subtotal := cart.Subtotal(lines)

	var sel Selection
	err = e.tx.VoucherTx(ctx, func(s Store) error {
		if err := s.DeletePendingCharge(ctx, userID); err != nil {
			return errors.Wrap(err, "delete pending charge")
		}

		uv, err := e.redeemable(ctx, s, userID, userVoucherID)
		if err != nil {
			return err
		}

		eval, err := Preview(uv, userID, subtotal, e.now())
		if err != nil {
			return err
		}

		sel.UserVoucher = *uv
		sel.Evaluation = eval
		sel.Charge = Charge{
			ID:            uuid.New().String(),
			UserID:        userID,
			Type:          ChargeVoucher,
			AmountCents:   eval.DiscountCents,
			UserVoucherID: uv.ID,
		}
		if err := s.InsertPendingCharge(ctx, &sel.Charge); err != nil {
			return errors.Wrap(err, "insert pending charge")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sel, nil
}

// Pending returns the user's pending voucher charge, or nil.
func (e *Escrow) Pending(ctx context.Context, userID string) (*Charge, error) {
	c, err := e.store.PendingCharge(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get pending charge")
	}
	return c, nil
}

// Clear removes the user's pending voucher charge, if any.
func (e *Escrow) Clear(ctx context.Context, userID string) error {
	if err := e.store.DeletePendingCharge(ctx, userID); err != nil {
		return errors.Wrap(err, "delete pending charge")
	}
	return nil
}

// ListForUser returns the vouchers granted to userID with their effective expiry.
func (e *Escrow) ListForUser(ctx context.Context, userID string) ([]Holding, error) {
	uvs, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user vouchers")
	}

	now := e.now()
	out := make([]Holding, len(uvs))
	for i := range uvs {
		out[i] = Holding{
			UserVoucher: uvs[i],
			Expiry:      uvs[i].EffectiveExpiry(),
			Expired:     uvs[i].Expired(now),
		}
	}
	return out, nil
}

// Reconcile re-validates the user's pending voucher inside the order
// transaction s belongs to. A voucher that is no longer redeemable, or whose
// minimum spend baseCents does not meet, is dropped and no discount applies.
// Otherwise the pending charge is attached to orderID with the discount
// computed on baseCents, and that amount is returned. The voucher is not
// marked used here.
func (e *Escrow) Reconcile(ctx context.Context, s Store, userID, orderID string, baseCents int64) (int64, error) {
	pending, err := s.PendingCharge(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "get pending charge")
	}
	if pending == nil {
		return 0, nil
	}

	lg := zctx.From(ctx).With(
		zap.String("user_id", userID),
		zap.String("user_voucher_id", pending.UserVoucherID),
	)
	drop := func(reason string) (int64, error) {
		lg.Info("Dropping pending voucher", zap.String("reason", reason))
		if err := s.DeletePendingCharge(ctx, userID); err != nil {
			return 0, errors.Wrap(err, "delete pending charge")
		}
		return 0, nil
	}

	uv, err := e.redeemable(ctx, s, userID, pending.UserVoucherID)
	if err != nil {
		var authErr *AuthorizationError
		if errors.As(err, &authErr) {
			return drop(authErr.Reason.Error())
		}
		return 0, err
	}
	switch {
	case baseCents <= 0:
		return drop(string(IneligibleEmptyCart))
	case baseCents < uv.Voucher.MinSpendCents:
		return drop(string(IneligibleMinSpend))
	}

	amount, err := Discount(uv.Voucher, baseCents)
	if err != nil {
		return 0, err
	}
	if err := s.AttachCharge(ctx, pending.ID, orderID, amount); err != nil {
		if errors.Is(err, ErrChargeGone) {
			lg.Info("Pending voucher taken by a concurrent checkout")
			return 0, nil
		}
		return 0, errors.Wrap(err, "attach charge")
	}
	return amount, nil
}

// redeemable loads a user voucher and checks ownership, usage, expiry and
// reservation by another order.
func (e *Escrow) redeemable(ctx context.Context, s Store, userID, userVoucherID string) (*UserVoucher, error) {
	uv, err := s.UserVoucher(ctx, userVoucherID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &AuthorizationError{UserVoucherID: userVoucherID, Reason: ErrNotFound}
		}
		return nil, errors.Wrap(err, "get user voucher")
	}
	if err := Authorize(uv, userID, e.now()); err != nil {
		return nil, err
	}

	reserved, err := s.IsReserved(ctx, uv.ID)
	if err != nil {
		return nil, errors.Wrap(err, "check reservation")
	}
	if reserved {
		return nil, &AuthorizationError{UserVoucherID: uv.ID, Reason: ErrReserved}
	}
	return uv, nil
}
