package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/order"
	"github.com/xenking/hawker-checkout/internal/domain/payment"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

const orderCodeConstraint = "orders_order_code_key"

const (
	orderColumns = `id, user_id, stall_id, total_cents, order_code, status, order_status,
		nets_txn_id, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (id, user_id, stall_id, total_cents, order_code,
		status, order_status, nets_txn_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateOrderTotalSQL = `UPDATE orders SET total_cents = $2, updated_at = now() WHERE id = $1`

	insertFeeChargeSQL = `INSERT INTO discount_charges (id, order_id, user_id, type, amount_cents)
		VALUES ($1, $2, $3, 'fee', $4)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	ordersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id`

	orderStallSQL = `SELECT id, name FROM stalls WHERE id = $1`

	orderItemsSQL = `SELECT id, order_id, menu_item_id, name, quantity, unit_cents, request
		FROM order_items WHERE order_id = $1 ORDER BY id`

	orderChargesSQL = `SELECT ` + chargeColumns + `
		FROM discount_charges WHERE order_id = $1 ORDER BY type, id`

	markPaidSQL = `UPDATE orders SET status = 'PAID', updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	consumeVouchersSQL = `UPDATE user_vouchers SET is_used = TRUE
		WHERE is_used = FALSE AND id IN (
			SELECT user_voucher_id FROM discount_charges
			WHERE order_id = $1 AND type = 'voucher')`
)

var (
	_ order.Reader         = (*OrderRepository)(nil)
	_ order.Writer         = (*OrderRepository)(nil)
	_ payment.ConfirmStore = (*OrderRepository)(nil)
)

// OrderRepository implements the order reader, writer and confirmation
// store backed by PostgreSQL.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository that runs on db.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

type checkoutTx struct {
	db DBTX
}

func (t checkoutTx) Orders() order.Writer    { return NewOrderRepository(t.db) }
func (t checkoutTx) Vouchers() voucher.Store { return NewVoucherRepository(t.db) }
func (t checkoutTx) Cart() cart.Repository   { return NewCartRepository(t.db) }

// CheckoutTx runs fn with order, voucher and cart stores sharing one transaction.
func (s *Store) CheckoutTx(ctx context.Context, fn func(tx order.CheckoutTx) error) error {
	return s.inTx(ctx, func(tx DBTX) error {
		return fn(checkoutTx{db: tx})
	})
}

// ConfirmTx runs fn with an OrderRepository bound to one transaction.
func (s *Store) ConfirmTx(ctx context.Context, fn func(s payment.ConfirmStore) error) error {
	return s.inTx(ctx, func(tx DBTX) error {
		return fn(NewOrderRepository(tx))
	})
}

// InsertOrder inserts o under a savepoint so that a code collision leaves
// the surrounding transaction usable.
func (r *OrderRepository) InsertOrder(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.db, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, insertOrderSQL,
			o.ID, o.UserID, o.StallID, o.TotalCents, o.Code,
			o.Status, o.FulfillmentStatus, o.NetsTxnID, o.CreatedAt, o.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, orderCodeConstraint) {
			return order.ErrCodeConflict
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

// UpdateTotal sets the total of an order.
func (r *OrderRepository) UpdateTotal(ctx context.Context, orderID string, totalCents int64) error {
	if _, err := r.db.Exec(ctx, updateOrderTotalSQL, orderID, totalCents); err != nil {
		return errors.Wrap(err, "update order total")
	}
	return nil
}

// InsertItems bulk inserts order items.
func (r *OrderRepository) InsertItems(ctx context.Context, items []order.Item) error {
	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"id", "order_id", "menu_item_id", "name", "quantity", "unit_cents", "request"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]
			return []any{it.ID, it.OrderID, it.MenuItemID, it.Name, it.Quantity, it.LineCents, it.Request}, nil
		}),
	)
	if err != nil {
		return errors.Wrap(err, "copy order items")
	}
	return nil
}

// InsertFeeCharge records the service fee of an order.
func (r *OrderRepository) InsertFeeCharge(ctx context.Context, c *voucher.Charge) error {
	if _, err := r.db.Exec(ctx, insertFeeChargeSQL, c.ID, c.OrderID, c.UserID, c.AmountCents); err != nil {
		return errors.Wrap(err, "insert fee charge")
	}
	return nil
}

// Get returns an order. Returns order.ErrNotFound when absent.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "collect order %q", id)
	}
	return &o, nil
}

// ListByUser returns the orders of userID, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.db.Query(ctx, ordersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "collect orders")
	}
	return orders, nil
}

// Details returns an order with its stall, items and charges.
func (r *OrderRepository) Details(ctx context.Context, id string) (*order.Details, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &order.Details{Order: *o}

	err = r.db.QueryRow(ctx, orderStallSQL, o.StallID).Scan(&d.Stall.ID, &d.Stall.Name)
	if err != nil {
		return nil, errors.Wrap(err, "get stall")
	}

	rows, err := r.db.Query(ctx, orderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	d.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.LineCents, &it.Request)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect order items")
	}

	rows, err = r.db.Query(ctx, orderChargesSQL, id)
	if err != nil {
		return nil, errors.Wrap(err, "query order charges")
	}
	d.Charges, err = pgx.CollectRows(rows, scanCharge)
	if err != nil {
		return nil, errors.Wrap(err, "collect order charges")
	}
	return d, nil
}

// MarkPaid moves a pending order to PAID and reports whether it did.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.db.Exec(ctx, markPaidSQL, orderID)
	if err != nil {
		return false, errors.Wrap(err, "mark order paid")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, orderID); err != nil {
		return false, err
	}
	return false, nil
}

// ConsumeVouchers marks the vouchers charged on orderID as used.
func (r *OrderRepository) ConsumeVouchers(ctx context.Context, orderID string) (int64, error) {
	tag, err := r.db.Exec(ctx, consumeVouchersSQL, orderID)
	if err != nil {
		return 0, errors.Wrap(err, "consume vouchers")
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.StallID, &o.TotalCents, &o.Code, &o.Status,
		&o.FulfillmentStatus, &o.NetsTxnID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}
