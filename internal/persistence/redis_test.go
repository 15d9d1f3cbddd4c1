package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// setupTestStore creates a test store connected to a miniredis instance
func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	t.Run("creates store successfully", func(t *testing.T) {
		store, _ := setupTestStore(t)
		assert.NotNil(t, store)
		assert.NoError(t, store.Ping(context.Background()))
	})

	t.Run("rejects empty namespace", func(t *testing.T) {
		_, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "namespace cannot be empty")
	})
}

func TestRedisStoreGetSet(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	t.Run("missing key reports not found without error", func(t *testing.T) {
		var v sample
		found, err := store.Get(ctx, "missing", &v)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("set then get returns the value", func(t *testing.T) {
		in := sample{Name: "uno", Values: []string{"a", "b"}}
		require.NoError(t, store.Set(ctx, "k1", in))

		var out sample
		found, err := store.Get(ctx, "k1", &out)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, in, out)
	})

	t.Run("set replaces previous value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k2", sample{Name: "first"}))
		require.NoError(t, store.Set(ctx, "k2", sample{Name: "second"}))

		var out sample
		_, err := store.Get(ctx, "k2", &out)
		require.NoError(t, err)
		assert.Equal(t, "second", out.Name)
	})

	t.Run("corrupt value is reported", func(t *testing.T) {
		require.NoError(t, mr.Set("corrupt", "{not json"))

		var out sample
		_, err := store.Get(ctx, "corrupt", &out)
		assert.Error(t, err)
	})

	t.Run("closed store returns ErrClosed", func(t *testing.T) {
		closed, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
		require.NoError(t, err)
		require.NoError(t, closed.Close())

		err = closed.Set(ctx, "k3", sample{})
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestRedisStoreDataEvents(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	sub, err := store.SubscribeDataEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.Set(ctx, "written-key", sample{Name: "x"}))

	select {
	case key := <-sub.Keys():
		assert.Equal(t, "written-key", key)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for data event")
	}

	// Close is idempotent
	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}
