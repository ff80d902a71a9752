package voucher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported voucher discount strategies.
type DiscountType string

const (
	// DiscountFixed takes a fixed amount in cents off the order, capped at the base.
	DiscountFixed DiscountType = "fixed"
	// DiscountPercentage takes a percentage of the base off the order.
	DiscountPercentage DiscountType = "percentage"
)

// ChargeType distinguishes fee rows from voucher rows in discount_charges.
type ChargeType string

const (
	ChargeFee     ChargeType = "fee"
	ChargeVoucher ChargeType = "voucher"
)

var (
	// ErrNotFound is returned when a user voucher does not exist.
	ErrNotFound = errors.New("voucher not found")
	// ErrNotOwned is returned when a user voucher belongs to someone else.
	ErrNotOwned = errors.New("voucher does not belong to user")
	// ErrUsed is returned when a user voucher has already been redeemed.
	ErrUsed = errors.New("voucher already used")
	// ErrExpired is returned when a user voucher is past its effective expiry.
	ErrExpired = errors.New("voucher expired")
	// ErrReserved is returned when a user voucher is attached to another order.
	ErrReserved = errors.New("voucher attached to another order")
	// ErrChargeGone is returned when a pending charge was attached or removed
	// concurrently.
	ErrChargeGone = errors.New("pending voucher charge no longer available")
)

// AuthorizationError reports why a user may not redeem a voucher.
type AuthorizationError struct {
	UserVoucherID string
	Reason        error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("voucher %s: %s", e.UserVoucherID, e.Reason)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Reason
}

// Voucher is a template describing a discount.
type Voucher struct {
	ID           string
	Code         string
	Description  string
	DiscountType DiscountType
	// DiscountAmount is cents for fixed vouchers and a percentage otherwise.
	DiscountAmount        decimal.Decimal
	MinSpendCents         int64
	ExpiryDate            *time.Time
	ExpiryOnReceiveMonths int
}

// UserVoucher is a voucher instance granted to a user.
type UserVoucher struct {
	ID         string
	UserID     string
	Voucher    Voucher
	IsUsed     bool
	ExpiryDate *time.Time
	CreatedAt  time.Time
}

// EffectiveExpiry resolves the expiry of a user voucher: its own expiry date,
// then the template's, then receive date plus the template's month offset.
// Nil means the voucher never expires.
func (uv *UserVoucher) EffectiveExpiry() *time.Time {
	switch {
	case uv.ExpiryDate != nil:
		return uv.ExpiryDate
	case uv.Voucher.ExpiryDate != nil:
		return uv.Voucher.ExpiryDate
	case uv.Voucher.ExpiryOnReceiveMonths > 0:
		t := uv.CreatedAt.AddDate(0, uv.Voucher.ExpiryOnReceiveMonths, 0)
		return &t
	default:
		return nil
	}
}

// Expired reports whether the voucher is past its effective expiry at now.
func (uv *UserVoucher) Expired(now time.Time) bool {
	exp := uv.EffectiveExpiry()
	return exp != nil && now.After(*exp)
}

// Charge is a row of discount_charges. OrderID is empty while a voucher
// charge is pending.
type Charge struct {
	ID            string
	OrderID       string
	UserID        string
	Type          ChargeType
	AmountCents   int64
	UserVoucherID string
}

// Pending reports whether the charge is not attached to an order yet.
func (c *Charge) Pending() bool {
	return c.OrderID == ""
}

// Store provides persistence for user vouchers and voucher charges.
type Store interface {
	// UserVoucher returns ErrNotFound when no such user voucher exists.
	UserVoucher(ctx context.Context, id string) (*UserVoucher, error)
	ListByUser(ctx context.Context, userID string) ([]UserVoucher, error)
	// IsReserved reports whether a charge attached to an order references the
	// user voucher.
	IsReserved(ctx context.Context, userVoucherID string) (bool, error)
	// PendingCharge returns nil when the user has no pending voucher charge.
	PendingCharge(ctx context.Context, userID string) (*Charge, error)
	InsertPendingCharge(ctx context.Context, c *Charge) error
	DeletePendingCharge(ctx context.Context, userID string) error
	// AttachCharge binds a pending charge to an order. It returns
	// ErrChargeGone when the charge is no longer pending.
	AttachCharge(ctx context.Context, chargeID, orderID string, amountCents int64) error
}

// Transactor runs fn with a Store bound to a single transaction.
type Transactor interface {
	VoucherTx(ctx context.Context, fn func(s Store) error) error
}
