package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectedNetwork(t *testing.T) {
	store := NewTestStore(t)

	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		_, err := store.SelectedNetwork(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.SetSelectedNetwork(ctx, "sess-1", "polygon"))
		network, err := store.SelectedNetwork(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, "polygon", network)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.SetSelectedNetwork(ctx, "sess-1", "base"))
		network, err := store.SelectedNetwork(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, "base", network)
	})
}

func TestDeleteBefore(t *testing.T) {
	store := NewTestStore(t)

	ctx := context.Background()
	require.NoError(t, store.SetSelectedNetwork(ctx, "old", "mainnet"))
	require.NoError(t, store.SetSelectedNetwork(ctx, "new", "mainnet"))
	store.Backdate(t, "old", 48*time.Hour)

	n, err := store.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.SelectedNetwork(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.SelectedNetwork(ctx, "new")
	assert.NoError(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryStore()
	m.now = func() time.Time { return clock }

	_, err := m.SelectedNetwork(ctx, "sess")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SetSelectedNetwork(ctx, "sess", "optimism"))
	network, err := m.SelectedNetwork(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "optimism", network)

	clock = clock.Add(time.Hour)
	require.NoError(t, m.SetSelectedNetwork(ctx, "fresh", "base"))

	n, err := m.DeleteBefore(ctx, clock.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = m.SelectedNetwork(ctx, "sess")
	assert.ErrorIs(t, err, ErrNotFound)
}
