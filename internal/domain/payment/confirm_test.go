package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hawker-checkout/internal/domain/order"
)

// memConfirmStore serializes transactions like row locks would.
type memConfirmStore struct {
	mu       sync.Mutex
	orders   map[string]*order.Order
	vouchers map[string]bool // user voucher id -> used
	charged  map[string][]string
	markErr  error
}

func (m *memConfirmStore) MarkPaid(_ context.Context, orderID string) (bool, error) {
	if m.markErr != nil {
		return false, m.markErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return false, nil
	}
	o.Status = order.StatusPaid
	return true, nil
}

func (m *memConfirmStore) ConsumeVouchers(_ context.Context, orderID string) (int64, error) {
	var n int64
	for _, id := range m.charged[orderID] {
		if !m.vouchers[id] {
			m.vouchers[id] = true
			n++
		}
	}
	return n, nil
}

func (m *memConfirmStore) Get(_ context.Context, orderID string) (*order.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memConfirmStore) ConfirmTx(_ context.Context, fn func(s ConfirmStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []PaidEvent
	err    error
}

func (p *recordingPublisher) PublishPaid(_ context.Context, evt PaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func newConfirmStore() *memConfirmStore {
	return &memConfirmStore{
		orders: map[string]*order.Order{
			"o1": {ID: "o1", UserID: "u1", Code: "K7Q2", TotalCents: 1002, Status: order.StatusPending},
		},
		vouchers: map[string]bool{"uv1": false},
		charged:  map[string][]string{"o1": {"uv1"}},
	}
}

func TestConfirmerOnSuccess(t *testing.T) {
	ctx := context.Background()

	t.Run("marks order paid and voucher used", func(t *testing.T) {
		store := newConfirmStore()
		pub := &recordingPublisher{}
		c := NewConfirmer(store, pub)

		res, err := c.OnSuccess(ctx, "o1")
		require.NoError(t, err)
		assert.True(t, res.Transitioned)
		assert.Equal(t, int64(1), res.VouchersConsumed)
		assert.Equal(t, order.StatusPaid, store.orders["o1"].Status)
		assert.True(t, store.vouchers["uv1"])

		require.Len(t, pub.events, 1)
		assert.Equal(t, "K7Q2", pub.events[0].OrderCode)
		assert.Equal(t, int64(1002), pub.events[0].TotalCents)
	})

	t.Run("concurrent confirmations transition once", func(t *testing.T) {
		store := newConfirmStore()
		pub := &recordingPublisher{}
		c := NewConfirmer(store, pub)

		const n = 8
		results := make(chan *Confirmation, n)
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := c.OnSuccess(ctx, "o1")
				assert.NoError(t, err)
				results <- res
			}()
		}
		wg.Wait()
		close(results)

		transitions := 0
		for res := range results {
			if res != nil && res.Transitioned {
				transitions++
			}
		}
		assert.Equal(t, 1, transitions)
		assert.Len(t, pub.events, 1)
		assert.Equal(t, order.StatusPaid, store.orders["o1"].Status)
		assert.True(t, store.vouchers["uv1"])
	})

	t.Run("completed order is not regressed", func(t *testing.T) {
		store := newConfirmStore()
		store.orders["o1"].Status = order.StatusCompleted
		c := NewConfirmer(store, nil)

		res, err := c.OnSuccess(ctx, "o1")
		require.NoError(t, err)
		assert.False(t, res.Transitioned)
		assert.Equal(t, order.StatusCompleted, store.orders["o1"].Status)
	})

	t.Run("unknown order", func(t *testing.T) {
		c := NewConfirmer(newConfirmStore(), nil)

		_, err := c.OnSuccess(ctx, "nope")
		require.ErrorIs(t, err, order.ErrNotFound)
	})

	t.Run("publish failure does not fail confirmation", func(t *testing.T) {
		store := newConfirmStore()
		c := NewConfirmer(store, &recordingPublisher{err: errors.New("broker down")})

		res, err := c.OnSuccess(ctx, "o1")
		require.NoError(t, err)
		assert.True(t, res.Transitioned)
	})
}
