package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hawker-checkout/internal/domain/cart"
	"github.com/xenking/hawker-checkout/internal/domain/voucher"
)

// --- Mock implementations ---

type mockOrderWriter struct {
	taken     map[string]bool
	insertErr error
	itemsErr  error
	attempts  int

	orders  []Order
	items   []Item
	charges []voucher.Charge
	totals  map[string]int64
}

func (m *mockOrderWriter) InsertOrder(_ context.Context, o *Order) error {
	m.attempts++
	if m.insertErr != nil {
		return m.insertErr
	}
	if m.taken[o.Code] {
		return ErrCodeConflict
	}
	m.orders = append(m.orders, *o)
	return nil
}

func (m *mockOrderWriter) UpdateTotal(_ context.Context, orderID string, totalCents int64) error {
	if m.totals == nil {
		m.totals = make(map[string]int64)
	}
	m.totals[orderID] = totalCents
	return nil
}

func (m *mockOrderWriter) InsertItems(_ context.Context, items []Item) error {
	if m.itemsErr != nil {
		return m.itemsErr
	}
	m.items = append(m.items, items...)
	return nil
}

func (m *mockOrderWriter) InsertFeeCharge(_ context.Context, c *voucher.Charge) error {
	m.charges = append(m.charges, *c)
	return nil
}

type mockCart struct {
	lines   []cart.Line
	cleared bool
}

func (m *mockCart) LinesForUser(context.Context, string) ([]cart.Line, error) {
	return m.lines, nil
}

func (m *mockCart) ClearForUser(context.Context, string) error {
	m.cleared = true
	return nil
}

type mockCheckout struct {
	orders    *mockOrderWriter
	cart      *mockCart
	committed bool
}

func (m *mockCheckout) Orders() Writer          { return m.orders }
func (m *mockCheckout) Vouchers() voucher.Store { return nil }
func (m *mockCheckout) Cart() cart.Repository   { return m.cart }

func (m *mockCheckout) CheckoutTx(_ context.Context, fn func(tx CheckoutTx) error) error {
	if err := fn(m); err != nil {
		return err
	}
	m.committed = true
	return nil
}

type mockReconciler struct {
	discount int64
	err      error
	base     int64
	orderID  string
}

func (m *mockReconciler) Reconcile(_ context.Context, _ voucher.Store, _, orderID string, base int64) (int64, error) {
	m.base = base
	m.orderID = orderID
	return m.discount, m.err
}

// --- Helpers ---

func newTestFactory(fee int64, tx *mockCheckout, rec *mockReconciler) *Factory {
	f := NewFactory(FactoryConfig{ServiceFeeCents: fee}, tx, rec, &CodeGenerator{next: sequence("K7Q2")})
	f.newTxnID = func() string { return "txn-1" }
	f.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return f
}

func testLines() []cart.Line {
	return []cart.Line{
		{ID: "l1", MenuItemID: "m1", StallID: "s1", Name: "Chicken Rice", Quantity: 2, UnitPriceCents: 450, Request: "no chilli"},
		{ID: "l2", MenuItemID: "m2", StallID: "s1", Name: "Teh Peng", Quantity: 1, UnitPriceCents: 180},
	}
}

// --- Tests ---

func TestCreateFromCart(t *testing.T) {
	ctx := context.Background()

	t.Run("creates order with fee and discount", func(t *testing.T) {
		tx := &mockCheckout{orders: &mockOrderWriter{}, cart: &mockCart{lines: testLines()}}
		rec := &mockReconciler{discount: 108}
		f := newTestFactory(30, tx, rec)

		o, err := f.CreateFromCart(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, tx.committed)

		assert.Equal(t, "K7Q2", o.Code)
		assert.Equal(t, "s1", o.StallID)
		assert.Equal(t, "txn-1", o.NetsTxnID)
		assert.Equal(t, StatusPending, o.Status)
		assert.Equal(t, FulfillmentAwaiting, o.FulfillmentStatus)
		// 1080 subtotal + 30 fee - 108 discount.
		assert.Equal(t, int64(1002), o.TotalCents)
		assert.Equal(t, int64(1002), tx.orders.totals[o.ID])

		assert.Equal(t, int64(1080), rec.base)
		assert.Equal(t, o.ID, rec.orderID)

		require.Len(t, tx.orders.charges, 1)
		assert.Equal(t, voucher.ChargeFee, tx.orders.charges[0].Type)
		assert.Equal(t, int64(30), tx.orders.charges[0].AmountCents)

		require.Len(t, tx.orders.items, 2)
		assert.Equal(t, int64(900), tx.orders.items[0].LineCents)
		assert.Equal(t, "no chilli", tx.orders.items[0].Request)
		assert.True(t, tx.cart.cleared)
	})

	t.Run("no fee row when fee is zero", func(t *testing.T) {
		tx := &mockCheckout{orders: &mockOrderWriter{}, cart: &mockCart{lines: testLines()}}
		f := newTestFactory(0, tx, &mockReconciler{})

		o, err := f.CreateFromCart(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1080), o.TotalCents)
		assert.Empty(t, tx.orders.charges)
		assert.Nil(t, tx.orders.totals)
	})

	t.Run("empty cart", func(t *testing.T) {
		tx := &mockCheckout{orders: &mockOrderWriter{}, cart: &mockCart{}}
		f := newTestFactory(30, tx, &mockReconciler{})

		_, err := f.CreateFromCart(ctx, "u1")
		require.ErrorIs(t, err, ErrEmptyCart)
		assert.False(t, tx.committed)
		assert.Zero(t, tx.orders.attempts)
	})

	t.Run("missing stall", func(t *testing.T) {
		lines := testLines()
		lines[0].StallID = ""
		tx := &mockCheckout{orders: &mockOrderWriter{}, cart: &mockCart{lines: lines}}
		f := newTestFactory(30, tx, &mockReconciler{})

		_, err := f.CreateFromCart(ctx, "u1")
		require.ErrorIs(t, err, ErrMissingStall)
	})

	t.Run("item failure aborts checkout", func(t *testing.T) {
		tx := &mockCheckout{
			orders: &mockOrderWriter{itemsErr: errors.New("disk full")},
			cart:   &mockCart{lines: testLines()},
		}
		f := newTestFactory(30, tx, &mockReconciler{})

		_, err := f.CreateFromCart(ctx, "u1")
		require.ErrorContains(t, err, "insert items")
		assert.False(t, tx.committed)
		assert.False(t, tx.cart.cleared)
	})

	t.Run("reconcile failure aborts checkout", func(t *testing.T) {
		tx := &mockCheckout{orders: &mockOrderWriter{}, cart: &mockCart{lines: testLines()}}
		f := newTestFactory(30, tx, &mockReconciler{err: errors.New("deadlock")})

		_, err := f.CreateFromCart(ctx, "u1")
		require.ErrorContains(t, err, "reconcile voucher")
		assert.False(t, tx.committed)
	})

	t.Run("code exhaustion", func(t *testing.T) {
		tx := &mockCheckout{
			orders: &mockOrderWriter{taken: map[string]bool{"K7Q2": true}},
			cart:   &mockCart{lines: testLines()},
		}
		f := newTestFactory(30, tx, &mockReconciler{})

		_, err := f.CreateFromCart(ctx, "u1")
		require.ErrorIs(t, err, ErrCodeExhausted)
	})
}
