package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func newMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		m := newMemory(t)
		require.NoError(t, m.Set(ctx, "k", payload{Name: "a", Score: 1.5}, time.Minute))

		var got payload
		require.NoError(t, m.Get(ctx, "k", &got))
		assert.Equal(t, payload{Name: "a", Score: 1.5}, got)
	})

	t.Run("missing key", func(t *testing.T) {
		var got payload
		assert.ErrorIs(t, newMemory(t).Get(ctx, "nope", &got), ErrMiss)
	})

	t.Run("expiry", func(t *testing.T) {
		m := newMemory(t)
		require.NoError(t, m.Set(ctx, "k", payload{Name: "a"}, 50*time.Millisecond))

		var got payload
		assert.NoError(t, m.Get(ctx, "k", &got))

		assert.Eventually(t, func() bool {
			return errors.Is(m.Get(ctx, "k", &got), ErrMiss)
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("no expiry", func(t *testing.T) {
		m := newMemory(t)
		require.NoError(t, m.Set(ctx, "k", 1, 0))
		require.NoError(t, m.Set(ctx, "neg", 2, -time.Second))
		var neg int
		assert.NoError(t, m.Get(ctx, "neg", &neg))
		var got int
		assert.NoError(t, m.Get(ctx, "k", &got))
		assert.Equal(t, 1, got)
	})

	t.Run("nil pointer values are cached", func(t *testing.T) {
		m := newMemory(t)
		var absent *payload
		require.NoError(t, m.Set(ctx, "k", absent, time.Minute))

		got := &payload{Name: "stale"}
		require.NoError(t, m.Get(ctx, "k", &got))
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		m := newMemory(t)
		require.NoError(t, m.Set(ctx, "a", 1, time.Minute))
		require.NoError(t, m.Set(ctx, "b", 2, time.Minute))
		require.NoError(t, m.Delete(ctx, "a", "b"))

		var got int
		assert.ErrorIs(t, m.Get(ctx, "a", &got), ErrMiss)
		assert.ErrorIs(t, m.Get(ctx, "b", &got), ErrMiss)
	})
}
