package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hawker-checkout/internal/domain/order"
)

// ConfirmStore performs the conditional updates of a confirmation.
type ConfirmStore interface {
	// MarkPaid moves a pending order to PAID and reports whether this call
	// did the transition. It returns order.ErrNotFound for unknown orders.
	MarkPaid(ctx context.Context, orderID string) (bool, error)
	// ConsumeVouchers marks the unused vouchers charged on the order as used
	// and returns how many were updated.
	ConsumeVouchers(ctx context.Context, orderID string) (int64, error)
	Get(ctx context.Context, orderID string) (*order.Order, error)
}

// ConfirmTransactor runs fn inside a single transaction.
type ConfirmTransactor interface {
	ConfirmTx(ctx context.Context, fn func(s ConfirmStore) error) error
}

// Confirmation reports the effect of a confirmation call.
type Confirmation struct {
	Order            order.Order
	Transitioned     bool
	VouchersConsumed int64
}

// Confirmer finalizes an order after the gateway reported success.
type Confirmer struct {
	tx     ConfirmTransactor
	events Publisher
	now    func() time.Time
}

// NewConfirmer creates a Confirmer. events may be nil.
func NewConfirmer(tx ConfirmTransactor, events Publisher) *Confirmer {
	return &Confirmer{tx: tx, events: events, now: time.Now}
}

// OnSuccess marks the order PAID and its vouchers used in one transaction.
// Repeated calls are no-ops. A PaidEvent is published only by the call that
// performed the transition.
func (c *Confirmer) OnSuccess(ctx context.Context, orderID string) (*Confirmation, error) {
	var res Confirmation
	err := c.tx.ConfirmTx(ctx, func(s ConfirmStore) error {
		transitioned, err := s.MarkPaid(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "mark paid")
		}
		res.Transitioned = transitioned

		o, err := s.Get(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		res.Order = *o
		if !o.Paid() {
			return errors.Errorf("order %s in unexpected status %q", orderID, o.Status)
		}

		n, err := s.ConsumeVouchers(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "consume vouchers")
		}
		res.VouchersConsumed = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", orderID))
	if !res.Transitioned {
		lg.Debug("Payment already confirmed")
		return &res, nil
	}
	lg.Info("Payment confirmed", zap.Int64("vouchers_consumed", res.VouchersConsumed))

	if c.events != nil {
		evt := PaidEvent{
			OrderID:    res.Order.ID,
			OrderCode:  res.Order.Code,
			UserID:     res.Order.UserID,
			StallID:    res.Order.StallID,
			TotalCents: res.Order.TotalCents,
			PaidAt:     c.now(),
		}
		if err := c.events.PublishPaid(ctx, evt); err != nil {
			lg.Warn("Publish paid event", zap.Error(err))
		}
	}
	return &res, nil
}
