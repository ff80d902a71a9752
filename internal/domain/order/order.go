package order

import (
	"context"
	"time"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

// Status is the payment status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "PAID"
	StatusCompleted Status = "COMPLETED"
)

// FulfillmentStatus tracks the stall's progress on an order.
type FulfillmentStatus string

const (
	FulfillmentAwaiting  FulfillmentStatus = "awaiting"
	FulfillmentPreparing FulfillmentStatus = "preparing"
	FulfillmentReady     FulfillmentStatus = "ready"
	FulfillmentCollected FulfillmentStatus = "collected"
)

// Order is a checked-out cart awaiting or past payment.
type Order struct {
	ID                string
	UserID            string
	StallID           string
	TotalCents        int64
	Code              string
	Status            Status
	FulfillmentStatus FulfillmentStatus
	// NetsTxnID is the gateway transaction id, fixed at creation.
	NetsTxnID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Paid reports whether payment for the order has been confirmed.
func (o *Order) Paid() bool {
	return o.Status == StatusPaid || o.Status == StatusCompleted
}

// Item is an immutable order line. LineCents is price times quantity.
type Item struct {
	ID         string
	OrderID    string
	MenuItemID string
	Name       string
	Quantity   int
	LineCents  int64
	Request    string
}

// Stall is the seller an order was placed with.
type Stall struct {
	ID   string
	Name string
}

// Details is an order with its stall, items and price breakdown.
type Details struct {
	Order   Order
	Stall   Stall
	Items   []Item
	Charges []voucher.Charge

	SubtotalCents   int64
	ServiceFeeCents int64
	VoucherCents    int64
}

// Breakdown fills the price breakdown fields from Items and Charges.
func (d *Details) Breakdown() {
	d.SubtotalCents, d.ServiceFeeCents, d.VoucherCents = 0, 0, 0
	for _, it := range d.Items {
		d.SubtotalCents += it.LineCents
	}
	for _, c := range d.Charges {
		switch c.Type {
		case voucher.ChargeFee:
			d.ServiceFeeCents += c.AmountCents
		case voucher.ChargeVoucher:
			d.VoucherCents += c.AmountCents
		}
	}
}

// Reader provides order lookups.
type Reader interface {
	// Get returns ErrNotFound when the order does not exist.
	Get(ctx context.Context, id string) (*Order, error)
	Details(ctx context.Context, id string) (*Details, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// Writer persists a new order. It is always used inside a transaction.
type Writer interface {
	// InsertOrder returns ErrCodeConflict when the order code is taken.
	InsertOrder(ctx context.Context, o *Order) error
	UpdateTotal(ctx context.Context, orderID string, totalCents int64) error
	InsertItems(ctx context.Context, items []Item) error
	InsertFeeCharge(ctx context.Context, c *voucher.Charge) error
}

// CheckoutTx exposes the stores taking part in a checkout transaction.
type CheckoutTx interface {
	Orders() Writer
	Vouchers() voucher.Store
	Cart() cart.Repository
}

// Transactor runs fn inside a single checkout transaction.
type Transactor interface {
	CheckoutTx(ctx context.Context, fn func(tx CheckoutTx) error) error
}
