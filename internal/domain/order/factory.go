package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

var (
	// ErrEmptyCart is returned when checking out a cart without lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrMissingStall is returned when cart lines carry no stall.
	ErrMissingStall = errors.New("cart line has no stall")
)

// VoucherReconciler converts a user's pending voucher into an order discount.
type VoucherReconciler interface {
	Reconcile(ctx context.Context, s voucher.Store, userID, orderID string, baseCents int64) (int64, error)
}

// FactoryConfig holds checkout pricing parameters.
type FactoryConfig struct {
	// ServiceFeeCents is added to every order. Zero disables the fee row.
	ServiceFeeCents int64
}

// Factory turns carts into persisted orders.
type Factory struct {
	tx       Transactor
	vouchers VoucherReconciler
	codes    *CodeGenerator
	fee      int64

	newTxnID func() string
	now      func() time.Time
}

// NewFactory creates a Factory.
func NewFactory(cfg FactoryConfig, tx Transactor, vouchers VoucherReconciler, codes *CodeGenerator) *Factory {
	return &Factory{
		tx:       tx,
		vouchers: vouchers,
		codes:    codes,
		fee:      cfg.ServiceFeeCents,
		newTxnID: func() string { return uuid.New().String() },
		now:      time.Now,
	}
}

// CreateFromCart checks out the user's cart in one transaction: the order
// with a unique code, the service fee row, the reconciled voucher discount
// and the order items are written and the cart is cleared. Any failure
// leaves no trace.
func (f *Factory) CreateFromCart(ctx context.Context, userID string) (*Order, error) {
	var o *Order
	err := f.tx.CheckoutTx(ctx, func(tx CheckoutTx) error {
		lines, err := tx.Cart().LinesForUser(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "load cart")
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}
		stallID := lines[0].StallID
		if stallID == "" {
			return ErrMissingStall
		}
		subtotal := cart.Subtotal(lines)

		now := f.now()
		o = &Order{
			ID:                uuid.New().String(),
			UserID:            userID,
			StallID:           stallID,
			TotalCents:        subtotal + f.fee,
			Status:            StatusPending,
			FulfillmentStatus: FulfillmentAwaiting,
			NetsTxnID:         f.newTxnID(),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		orders := tx.Orders()
		if err := f.codes.CreateWithUniqueCode(ctx, orders, o); err != nil {
			return err
		}

		if f.fee > 0 {
			fee := &voucher.Charge{
				ID:          uuid.New().String(),
				OrderID:     o.ID,
				UserID:      userID,
				Type:        voucher.ChargeFee,
				AmountCents: f.fee,
			}
			if err := orders.InsertFeeCharge(ctx, fee); err != nil {
				return errors.Wrap(err, "insert fee charge")
			}
		}

		discount, err := f.vouchers.Reconcile(ctx, tx.Vouchers(), userID, o.ID, subtotal)
		if err != nil {
			return errors.Wrap(err, "reconcile voucher")
		}
		if discount > 0 {
			o.TotalCents -= discount
			if err := orders.UpdateTotal(ctx, o.ID, o.TotalCents); err != nil {
				return errors.Wrap(err, "update total")
			}
		}

		items := make([]Item, len(lines))
		for i, l := range lines {
			items[i] = Item{
				ID:         uuid.New().String(),
				OrderID:    o.ID,
				MenuItemID: l.MenuItemID,
				Name:       l.Name,
				Quantity:   l.Quantity,
				LineCents:  l.TotalCents(),
				Request:    l.Request,
			}
		}
		if err := orders.InsertItems(ctx, items); err != nil {
			return errors.Wrap(err, "insert items")
		}

		if err := tx.Cart().ClearForUser(ctx, userID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("order_code", o.Code),
		zap.Int64("total_cents", o.TotalCents),
	)
	return o, nil
}
