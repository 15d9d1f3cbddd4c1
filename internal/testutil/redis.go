package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/boardctl/internal/persistence"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestNamespace is the persistence namespace used by test stores.
const TestNamespace = "test-instance"

// NewRedisStore creates a persistence store connected to a fresh miniredis instance.
// Both are closed when the test finishes.
func NewRedisStore(t *testing.T) (*persistence.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := persistence.NewRedisStore(&redis.Options{Addr: mr.Addr()}, TestNamespace)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

// ReopenRedisStore connects a second store to an existing miniredis instance,
// simulating a process restart against the same backing data.
func ReopenRedisStore(t *testing.T, mr *miniredis.Miniredis) *persistence.RedisStore {
	t.Helper()

	store, err := persistence.NewRedisStore(&redis.Options{Addr: mr.Addr()}, TestNamespace)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}
