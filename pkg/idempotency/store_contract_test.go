package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("claim then get pending", func(t *testing.T) {
		s := newStore(t)
		rec := &Record{Route: "POST:/checkout_sessions", Key: "k1", PayloadHash: "h1", RequestID: "req_1"}

		got, claimed, err := s.Claim(ctx, rec)
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.Equal(t, "k1", got.Key)

		stored, err := s.Get(ctx, rec.Route, rec.Key)
		require.NoError(t, err)
		assert.False(t, stored.Completed)
		assert.Equal(t, "h1", stored.PayloadHash)
	})

	t.Run("second claim returns existing", func(t *testing.T) {
		s := newStore(t)
		first := &Record{Route: "r", Key: "k", PayloadHash: "h1"}
		_, claimed, err := s.Claim(ctx, first)
		require.NoError(t, err)
		require.True(t, claimed)

		existing, claimed, err := s.Claim(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h2"})
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Equal(t, "h1", existing.PayloadHash)
	})

	t.Run("routes are independent", func(t *testing.T) {
		s := newStore(t)
		_, claimed, err := s.Claim(ctx, &Record{Route: "POST:/checkout_sessions/cs_1", Key: "same", PayloadHash: "h"})
		require.NoError(t, err)
		require.True(t, claimed)

		_, claimed, err = s.Claim(ctx, &Record{Route: "POST:/checkout_sessions/cs_2", Key: "same", PayloadHash: "h"})
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("complete stores response", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.Claim(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h"})
		require.NoError(t, err)

		body := []byte(`{"id":"cs_1"}`)
		require.NoError(t, s.Complete(ctx, &Record{
			Route: "r", Key: "k", PayloadHash: "h", RequestID: "req_9", StatusCode: 201, Body: body,
		}))

		got, err := s.Get(ctx, "r", "k")
		require.NoError(t, err)
		assert.True(t, got.Completed)
		assert.Equal(t, 201, got.StatusCode)
		assert.Equal(t, body, got.Body)
		assert.Equal(t, "req_9", got.RequestID)
	})

	t.Run("completed record is write once", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.Claim(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h"})
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h", StatusCode: 201, Body: []byte("first")}))
		require.NoError(t, s.Complete(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h", StatusCode: 500, Body: []byte("second")}))

		got, err := s.Get(ctx, "r", "k")
		require.NoError(t, err)
		assert.Equal(t, 201, got.StatusCode)
		assert.Equal(t, []byte("first"), got.Body)
	})

	t.Run("release frees pending key", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.Claim(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h"})
		require.NoError(t, err)
		require.NoError(t, s.Release(ctx, "r", "k"))

		_, err = s.Get(ctx, "r", "k")
		assert.ErrorIs(t, err, ErrNotFound)

		_, claimed, err := s.Claim(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h"})
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("release keeps completed record", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.Claim(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h"})
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, &Record{Route: "r", Key: "k", PayloadHash: "h", StatusCode: 200, Body: []byte("{}")}))
		require.NoError(t, s.Release(ctx, "r", "k"))

		got, err := s.Get(ctx, "r", "k")
		require.NoError(t, err)
		assert.True(t, got.Completed)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "r", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := newStore(t)
		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, claimed, err := s.Claim(ctx, &Record{Route: "r", Key: "race", PayloadHash: "h"})
				if assert.NoError(t, err) && claimed {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), winners.Load())
	})
}
