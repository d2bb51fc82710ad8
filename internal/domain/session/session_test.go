package session

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/pos-pricing/internal/domain/cart"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess := &Session{ID: "s1", Cart: cart.New("s1")}

	require.NoError(t, store.Create(ctx, sess))
	require.Error(t, store.Create(ctx, sess))

	boom := errors.New("boom")
	_, err := store.Update(ctx, "s1", func(s *Session) error {
		s.CheckedOut = true
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.CheckedOut)

	updated, err := store.Update(ctx, "s1", func(s *Session) error {
		s.CheckedOut = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.CheckedOut)

	got.CheckedOut = false
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, again.CheckedOut)

	require.NoError(t, store.Delete(ctx, "s1"))
	require.ErrorIs(t, store.Delete(ctx, "s1"), ErrNotFound)
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Update(ctx, "s1", func(*Session) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}
