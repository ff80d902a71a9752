package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hawker-checkout/internal/domain/payment"
)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewSessionStore(client), mr
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, err := store.Lookup(ctx, "o1")
	require.ErrorIs(t, err, payment.ErrSessionNotFound)

	require.NoError(t, store.Save(ctx, "o1", "ref-1", time.Minute))
	require.NoError(t, store.Save(ctx, "o1", "ref-2", time.Minute))

	ref, err := store.Lookup(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "ref-2", ref)
	assert.Equal(t, time.Minute, mr.TTL(sessionKey("o1")))

	require.NoError(t, store.Delete(ctx, "o1"))
	_, err = store.Lookup(ctx, "o1")
	require.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.Save(ctx, "o1", "ref-1", 6*time.Minute))
	mr.FastForward(6*time.Minute + time.Second)

	_, err := store.Lookup(ctx, "o1")
	require.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestNewClientUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewClient(context.Background(), "redis://"+addr)
	require.Error(t, err)
}

func TestNewClientBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "mysql://nope")
	require.Error(t, err)
}
