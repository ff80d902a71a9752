package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

const (
	userVoucherColumns = `uv.id, uv.user_id, uv.is_used, uv.expiry_date, uv.created_at,
		v.id, v.code, v.description, v.discount_type, v.discount_amount,
		v.min_spend_cents, v.expiry_date, v.expiry_on_receive_months`

	userVoucherSQL = `SELECT ` + userVoucherColumns + `
		FROM user_vouchers uv JOIN vouchers v ON v.id = uv.voucher_id
		WHERE uv.id = $1
		FOR UPDATE OF uv`

	userVouchersByUserSQL = `SELECT ` + userVoucherColumns + `
		FROM user_vouchers uv JOIN vouchers v ON v.id = uv.voucher_id
		WHERE uv.user_id = $1
		ORDER BY uv.created_at DESC, uv.id`

	voucherReservedSQL = `SELECT EXISTS (
		SELECT 1 FROM discount_charges
		WHERE user_voucher_id = $1 AND order_id IS NOT NULL)`

	chargeColumns = `id, order_id, user_id, type, amount_cents, user_voucher_id`

	pendingChargeSQL = `SELECT ` + chargeColumns + `
		FROM discount_charges
		WHERE user_id = $1 AND type = 'voucher' AND order_id IS NULL`

	insertPendingChargeSQL = `INSERT INTO discount_charges (id, user_id, type, amount_cents, user_voucher_id)
		VALUES ($1, $2, 'voucher', $3, $4)`

	deletePendingChargeSQL = `DELETE FROM discount_charges
		WHERE user_id = $1 AND type = 'voucher' AND order_id IS NULL`

	attachChargeSQL = `UPDATE discount_charges SET order_id = $2, amount_cents = $3
		WHERE id = $1 AND order_id IS NULL`
)

var _ voucher.Store = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Store backed by PostgreSQL.
type VoucherRepository struct {
	db DBTX
}

// NewVoucherRepository returns a VoucherRepository that runs on db.
func NewVoucherRepository(db DBTX) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// VoucherTx runs fn with a VoucherRepository bound to one transaction.
func (s *Store) VoucherTx(ctx context.Context, fn func(s voucher.Store) error) error {
	return s.inTx(ctx, func(tx DBTX) error {
		return fn(NewVoucherRepository(tx))
	})
}

// UserVoucher returns a user voucher with its template, locking the row for
// the rest of the transaction.
func (r *VoucherRepository) UserVoucher(ctx context.Context, id string) (*voucher.UserVoucher, error) {
	rows, err := r.db.Query(ctx, userVoucherSQL, id)
	if err != nil {
		return nil, errors.Wrap(err, "query user voucher")
	}
	uv, err := pgx.CollectExactlyOneRow(rows, scanUserVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrNotFound
		}
		return nil, errors.Wrapf(err, "collect user voucher %q", id)
	}
	return &uv, nil
}

// ListByUser returns all vouchers granted to userID, newest first.
func (r *VoucherRepository) ListByUser(ctx context.Context, userID string) ([]voucher.UserVoucher, error) {
	rows, err := r.db.Query(ctx, userVouchersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query user vouchers")
	}
	uvs, err := pgx.CollectRows(rows, scanUserVoucher)
	if err != nil {
		return nil, errors.Wrap(err, "collect user vouchers")
	}
	return uvs, nil
}

// IsReserved reports whether an order already carries the user voucher.
func (r *VoucherRepository) IsReserved(ctx context.Context, userVoucherID string) (bool, error) {
	var reserved bool
	if err := r.db.QueryRow(ctx, voucherReservedSQL, userVoucherID).Scan(&reserved); err != nil {
		return false, errors.Wrap(err, "check voucher reservation")
	}
	return reserved, nil
}

// PendingCharge returns the pending voucher charge of userID, or nil.
func (r *VoucherRepository) PendingCharge(ctx context.Context, userID string) (*voucher.Charge, error) {
	rows, err := r.db.Query(ctx, pendingChargeSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query pending charge")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCharge)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "collect pending charge")
	}
	return &c, nil
}

// InsertPendingCharge stores c as the user's pending voucher charge.
func (r *VoucherRepository) InsertPendingCharge(ctx context.Context, c *voucher.Charge) error {
	_, err := r.db.Exec(ctx, insertPendingChargeSQL, c.ID, c.UserID, c.AmountCents, c.UserVoucherID)
	if err != nil {
		return errors.Wrap(err, "insert pending charge")
	}
	return nil
}

// DeletePendingCharge removes the pending voucher charge of userID.
func (r *VoucherRepository) DeletePendingCharge(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, deletePendingChargeSQL, userID); err != nil {
		return errors.Wrap(err, "delete pending charge")
	}
	return nil
}

// AttachCharge binds a still pending charge to orderID.
func (r *VoucherRepository) AttachCharge(ctx context.Context, chargeID, orderID string, amountCents int64) error {
	tag, err := r.db.Exec(ctx, attachChargeSQL, chargeID, orderID, amountCents)
	if err != nil {
		return errors.Wrap(err, "attach charge")
	}
	if tag.RowsAffected() == 0 {
		return voucher.ErrChargeGone
	}
	return nil
}

func scanUserVoucher(row pgx.CollectableRow) (voucher.UserVoucher, error) {
	var (
		uv     voucher.UserVoucher
		months *int32
	)
	err := row.Scan(
		&uv.ID, &uv.UserID, &uv.IsUsed, &uv.ExpiryDate, &uv.CreatedAt,
		&uv.Voucher.ID, &uv.Voucher.Code, &uv.Voucher.Description,
		&uv.Voucher.DiscountType, &uv.Voucher.DiscountAmount,
		&uv.Voucher.MinSpendCents, &uv.Voucher.ExpiryDate, &months,
	)
	if months != nil {
		uv.Voucher.ExpiryOnReceiveMonths = int(*months)
	}
	return uv, err
}

func scanCharge(row pgx.CollectableRow) (voucher.Charge, error) {
	var (
		c       voucher.Charge
		orderID *string
		uvID    *string
	)
	err := row.Scan(&c.ID, &orderID, &c.UserID, &c.Type, &c.AmountCents, &uvID)
	if orderID != nil {
		c.OrderID = *orderID
	}
	if uvID != nil {
		c.UserVoucherID = *uvID
	}
	return c, err
}
