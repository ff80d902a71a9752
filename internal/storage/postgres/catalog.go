package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/order"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

const (
	upsertStallSQL = `INSERT INTO stalls (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`

	upsertMenuItemSQL = `INSERT INTO menu_items (id, stall_id, name, price_cents) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET stall_id = EXCLUDED.stall_id, name = EXCLUDED.name, price_cents = EXCLUDED.price_cents`

	upsertVoucherSQL = `INSERT INTO vouchers (id, code, description, discount_type, discount_amount,
			min_spend_cents, expiry_date, expiry_on_receive_months)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type, discount_amount = EXCLUDED.discount_amount,
			min_spend_cents = EXCLUDED.min_spend_cents, expiry_date = EXCLUDED.expiry_date,
			expiry_on_receive_months = EXCLUDED.expiry_on_receive_months
		RETURNING id`

	voucherIDByCodeSQL = `SELECT id FROM vouchers WHERE code = $1`

	granteesSQL = `SELECT user_id FROM user_vouchers WHERE voucher_id = $1`

	grantedAmongSQL = `SELECT DISTINCT user_id FROM user_vouchers
		WHERE voucher_id = $1 AND user_id = ANY($2)`
)

// CatalogRepository maintains stalls, menu items and voucher grants.
type CatalogRepository struct {
	db DBTX
}

// NewCatalogRepository returns a CatalogRepository that runs on db.
func NewCatalogRepository(db DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertStall creates or renames a stall.
func (r *CatalogRepository) UpsertStall(ctx context.Context, s order.Stall) error {
	if _, err := r.db.Exec(ctx, upsertStallSQL, s.ID, s.Name); err != nil {
		return errors.Wrapf(err, "upsert stall %s", s.ID)
	}
	return nil
}

// UpsertMenuItem creates or updates a menu item.
func (r *CatalogRepository) UpsertMenuItem(ctx context.Context, m cart.MenuItem) error {
	if _, err := r.db.Exec(ctx, upsertMenuItemSQL, m.ID, m.StallID, m.Name, m.PriceCents); err != nil {
		return errors.Wrapf(err, "upsert menu item %s", m.ID)
	}
	return nil
}

// UpsertVoucher creates or updates a voucher template keyed by code and
// returns its id.
func (r *CatalogRepository) UpsertVoucher(ctx context.Context, v voucher.Voucher) (string, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	var months *int32
	if v.ExpiryOnReceiveMonths > 0 {
		m := int32(v.ExpiryOnReceiveMonths)
		months = &m
	}

	var id string
	err := r.db.QueryRow(ctx, upsertVoucherSQL,
		v.ID, v.Code, v.Description, string(v.DiscountType), v.DiscountAmount,
		v.MinSpendCents, v.ExpiryDate, months,
	).Scan(&id)
	if err != nil {
		return "", errors.Wrapf(err, "upsert voucher %s", v.Code)
	}
	return id, nil
}

// VoucherID resolves a voucher code. Returns voucher.ErrNotFound when the
// code is unknown.
func (r *CatalogRepository) VoucherID(ctx context.Context, code string) (string, error) {
	var id string
	if err := r.db.QueryRow(ctx, voucherIDByCodeSQL, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", voucher.ErrNotFound
		}
		return "", errors.Wrapf(err, "get voucher %s", code)
	}
	return id, nil
}

// Grantees streams the users already holding voucherID.
func (r *CatalogRepository) Grantees(ctx context.Context, voucherID string, fn func(userID string)) error {
	rows, err := r.db.Query(ctx, granteesSQL, voucherID)
	if err != nil {
		return errors.Wrap(err, "query grantees")
	}
	var userID string
	_, err = pgx.ForEachRow(rows, []any{&userID}, func() error {
		fn(userID)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "scan grantees")
	}
	return nil
}

// GrantedAmong returns the subset of userIDs already holding voucherID.
func (r *CatalogRepository) GrantedAmong(ctx context.Context, voucherID string, userIDs []string) ([]string, error) {
	rows, err := r.db.Query(ctx, grantedAmongSQL, voucherID, userIDs)
	if err != nil {
		return nil, errors.Wrap(err, "query granted users")
	}
	granted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan granted users")
	}
	return granted, nil
}

// Grant issues voucherID to every user in userIDs.
func (r *CatalogRepository) Grant(ctx context.Context, voucherID string, userIDs []string) (int64, error) {
	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"user_vouchers"},
		[]string{"id", "user_id", "voucher_id"},
		pgx.CopyFromSlice(len(userIDs), func(i int) ([]any, error) {
			return []any{uuid.NewString(), userIDs[i], voucherID}, nil
		}),
	)
	if err != nil {
		return 0, errors.Wrap(err, "copy user vouchers")
	}
	return n, nil
}
