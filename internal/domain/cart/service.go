package cart

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// AddItemRequest holds the input for adding a menu item to a cart.
type AddItemRequest struct {
	UserID     string
	MenuItemID string
	Quantity   int
	Request    string
}

// AddItemResult reports what AddItem did to the cart.
type AddItemResult struct {
	Line Line
	// Merged is true when the quantity was added to an existing line.
	Merged bool
	// Cleared holds the lines removed because the item is from another stall.
	Cleared []Line
}

// Service manages the contents of user carts.
type Service struct {
	carts Repository
	tx    Transactor
}

// NewService creates a cart Service.
func NewService(carts Repository, tx Transactor) *Service {
	return &Service{carts: carts, tx: tx}
}

// Lines returns the current cart of a user.
func (s *Service) Lines(ctx context.Context, userID string) ([]Line, error) {
	lines, err := s.carts.LinesForUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return lines, nil
}

// Clear empties the cart of a user.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.carts.ClearForUser(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// AddItem adds a menu item to the user's cart. A line with the same item and
// request is merged. Adding an item from a different stall replaces the cart.
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (*AddItemResult, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	request := strings.TrimSpace(req.Request)

	var result AddItemResult
	err := s.tx.CartTx(ctx, func(w Writer) error {
		item, err := w.MenuItem(ctx, req.MenuItemID)
		if err != nil {
			return errors.Wrap(err, "get menu item")
		}

		existing, err := w.LinesForUser(ctx, req.UserID)
		if err != nil {
			return errors.Wrap(err, "load cart")
		}
		if len(existing) > 0 && existing[0].StallID != item.StallID {
			if err := w.ClearForUser(ctx, req.UserID); err != nil {
				return errors.Wrap(err, "clear cart")
			}
			result.Cleared = existing
		}

		line, err := w.FindLine(ctx, req.UserID, item.ID, request)
		if err != nil {
			return errors.Wrap(err, "find line")
		}
		if line != nil {
			line.Quantity += req.Quantity
			if err := w.UpdateQuantity(ctx, line.ID, line.Quantity); err != nil {
				return errors.Wrap(err, "update quantity")
			}
			result.Line = *line
			result.Merged = true
			return nil
		}

		result.Line = Line{
			ID:             uuid.New().String(),
			UserID:         req.UserID,
			MenuItemID:     item.ID,
			StallID:        item.StallID,
			Name:           item.Name,
			Quantity:       req.Quantity,
			UnitPriceCents: item.PriceCents,
			Request:        request,
		}
		return w.InsertLine(ctx, &result.Line)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
