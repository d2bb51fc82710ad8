package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/session"
)

func newStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, time.Hour), mr
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	c := cart.New("s1")
	c.Items = []cart.LineItem{{
		ProductID: "latte", Name: "Latte", UnitPrice: decimal.RequireFromString("4.50"),
		Quantity: 2, Kind: cart.KindProduct,
	}}
	require.NoError(t, store.Create(ctx, &session.Session{ID: "s1", Cart: c}))
	require.Error(t, store.Create(ctx, &session.Session{ID: "s1"}))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got.Cart.Items, 1)
	assert.True(t, decimal.RequireFromString("4.50").Equal(got.Cart.Items[0].UnitPrice))

	boom := errors.New("boom")
	_, err = store.Update(ctx, "s1", func(s *session.Session) error {
		s.CheckedOut = true
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.CheckedOut)

	updated, err := store.Update(ctx, "s1", func(s *session.Session) error {
		s.CheckedOut = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.CheckedOut)

	require.NoError(t, store.Delete(ctx, "s1"))
	require.ErrorIs(t, store.Delete(ctx, "s1"), session.ErrNotFound)
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = store.Update(ctx, "s1", func(*session.Session) error { return nil })
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestSessionStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	store.maxRetries = 1000
	require.NoError(t, store.Create(ctx, &session.Session{ID: "s1", Cart: cart.New("s1")}))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "s1", func(s *session.Session) error {
				s.Cart.Version++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 11, got.Cart.Version)
}
