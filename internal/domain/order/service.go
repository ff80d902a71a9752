package order

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an order does not exist or is not visible to
// the caller.
var ErrNotFound = errors.New("order not found")

// Service answers order queries on behalf of a user.
type Service struct {
	orders Reader
}

// NewService creates an order Service.
func NewService(orders Reader) *Service {
	return &Service{orders: orders}
}

// Owned returns the order if it belongs to userID.
func (s *Service) Owned(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// Details returns the order with items, stall and price breakdown if it
// belongs to userID.
func (s *Service) Details(ctx context.Context, userID, orderID string) (*Details, error) {
	if _, err := s.Owned(ctx, userID, orderID); err != nil {
		return nil, err
	}
	d, err := s.orders.Details(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order details")
	}
	d.Breakdown()
	return d, nil
}

// ListForUser returns the orders of userID, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
