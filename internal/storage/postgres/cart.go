package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
)

const (
	cartLinesForUserSQL = `SELECT c.id, c.user_id, c.menu_item_id, m.stall_id, m.name,
		c.quantity, m.price_cents, c.request
		FROM cart_lines c JOIN menu_items m ON m.id = c.menu_item_id
		WHERE c.user_id = $1
		ORDER BY c.created_at, c.id`

	cartFindLineSQL = `SELECT c.id, c.user_id, c.menu_item_id, m.stall_id, m.name,
		c.quantity, m.price_cents, c.request
		FROM cart_lines c JOIN menu_items m ON m.id = c.menu_item_id
		WHERE c.user_id = $1 AND c.menu_item_id = $2 AND c.request = $3
		FOR UPDATE OF c`

	cartClearSQL = `DELETE FROM cart_lines WHERE user_id = $1`

	cartInsertLineSQL = `INSERT INTO cart_lines (id, user_id, menu_item_id, quantity, request)
		VALUES ($1, $2, $3, $4, $5)`

	cartUpdateQuantitySQL = `UPDATE cart_lines SET quantity = $2 WHERE id = $1`

	menuItemSQL = `SELECT id, stall_id, name, price_cents FROM menu_items WHERE id = $1`
)

var _ cart.Writer = (*CartRepository)(nil)

// CartRepository implements cart.Writer backed by PostgreSQL.
type CartRepository struct {
	db DBTX
}

// NewCartRepository returns a CartRepository that runs on db.
func NewCartRepository(db DBTX) *CartRepository {
	return &CartRepository{db: db}
}

// CartTx runs fn with a CartRepository bound to one transaction.
func (s *Store) CartTx(ctx context.Context, fn func(w cart.Writer) error) error {
	return s.inTx(ctx, func(tx DBTX) error {
		return fn(NewCartRepository(tx))
	})
}

// LinesForUser returns the cart lines of userID joined with their menu items.
func (r *CartRepository) LinesForUser(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.db.Query(ctx, cartLinesForUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart lines")
	}
	lines, err := pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, errors.Wrap(err, "collect cart lines")
	}
	return lines, nil
}

// ClearForUser deletes all cart lines of userID.
func (r *CartRepository) ClearForUser(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, cartClearSQL, userID); err != nil {
		return errors.Wrap(err, "delete cart lines")
	}
	return nil
}

// MenuItem looks up a menu item. Returns cart.ErrMenuItemNotFound when absent.
func (r *CartRepository) MenuItem(ctx context.Context, id string) (*cart.MenuItem, error) {
	var m cart.MenuItem
	err := r.db.QueryRow(ctx, menuItemSQL, id).Scan(&m.ID, &m.StallID, &m.Name, &m.PriceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrMenuItemNotFound
		}
		return nil, errors.Wrapf(err, "get menu item %q", id)
	}
	return &m, nil
}

// FindLine returns the line of userID for the item and request, or nil.
func (r *CartRepository) FindLine(ctx context.Context, userID, menuItemID, request string) (*cart.Line, error) {
	rows, err := r.db.Query(ctx, cartFindLineSQL, userID, menuItemID, request)
	if err != nil {
		return nil, errors.Wrap(err, "query cart line")
	}
	line, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "collect cart line")
	}
	return &line, nil
}

// InsertLine adds a new cart line.
func (r *CartRepository) InsertLine(ctx context.Context, l *cart.Line) error {
	_, err := r.db.Exec(ctx, cartInsertLineSQL, l.ID, l.UserID, l.MenuItemID, l.Quantity, l.Request)
	if err != nil {
		return errors.Wrap(err, "insert cart line")
	}
	return nil
}

// UpdateQuantity sets the quantity of a cart line.
func (r *CartRepository) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if _, err := r.db.Exec(ctx, cartUpdateQuantitySQL, lineID, quantity); err != nil {
		return errors.Wrap(err, "update cart line")
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.UserID, &l.MenuItemID, &l.StallID, &l.Name,
		&l.Quantity, &l.UnitPriceCents, &l.Request)
	return l, err
}
