package cart

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrMenuItemNotFound is returned when the added menu item does not exist.
	ErrMenuItemNotFound = errors.New("menu item not found")
	// ErrInvalidQuantity is returned when a line is added with a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Line is a single cart entry. All lines of one user belong to the same stall.
type Line struct {
	ID             string
	UserID         string
	MenuItemID     string
	StallID        string
	Name           string
	Quantity       int
	UnitPriceCents int64
	Request        string
}

// TotalCents returns the line total (unit price times quantity).
func (l Line) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// Subtotal returns the sum of line totals in cents.
func Subtotal(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.TotalCents()
	}
	return sum
}

// MenuItem is the priced item a cart line refers to.
type MenuItem struct {
	ID         string
	StallID    string
	Name       string
	PriceCents int64
}

// Repository is the read/clear side of the cart used by checkout.
type Repository interface {
	LinesForUser(ctx context.Context, userID string) ([]Line, error)
	ClearForUser(ctx context.Context, userID string) error
}

// Writer mutates a user's cart. It is always used inside a transaction.
type Writer interface {
	Repository
	MenuItem(ctx context.Context, id string) (*MenuItem, error)
	// FindLine returns nil when the user has no line for the item and request.
	FindLine(ctx context.Context, userID, menuItemID, request string) (*Line, error)
	InsertLine(ctx context.Context, l *Line) error
	UpdateQuantity(ctx context.Context, lineID string, quantity int) error
}

// Transactor runs fn with a Writer bound to a single transaction.
type Transactor interface {
	CartTx(ctx context.Context, fn func(w Writer) error) error
}
