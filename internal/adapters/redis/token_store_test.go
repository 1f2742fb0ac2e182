package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/ledger-console/internal/ports"
	"github.com/target/ledger-console/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func newTestStore(t *testing.T) (*TokenStore, *redis.Client) {
	t.Helper()
	client := setupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	// A per-test prefix keeps parallel packages from seeing each other's keys.
	return NewTokenStoreWithPrefix(client, "test:"+t.Name()+":"), client
}

func TestTokenStore_SaveAndLoad(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "console-1", "token-abc", 30*time.Minute))

	got, err := store.Load(ctx, "console-1")
	require.NoError(t, err)
	assert.Equal(t, "token-abc", got)

	ttl, err := client.TTL(ctx, store.prefix+"console-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 29*time.Minute)
	assert.LessOrEqual(t, ttl, 30*time.Minute)
}

func TestTokenStore_LoadMissing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	require.ErrorIs(t, err, ports.ErrTokenNotFound)

	_, err = store.Load(ctx, "")
	require.ErrorIs(t, err, ports.ErrTokenNotFound)
}

func TestTokenStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "console-del", "token", time.Minute))
	require.NoError(t, store.Delete(ctx, "console-del"))
	require.NoError(t, store.Delete(ctx, "console-del"), "delete is idempotent")
	require.NoError(t, store.Delete(ctx, ""))

	_, err := store.Load(ctx, "console-del")
	require.ErrorIs(t, err, ports.ErrTokenNotFound)
}

func TestTokenStore_SaveRejectsInvalid(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.Error(t, store.Save(ctx, "", "token", time.Minute))
	require.Error(t, store.Save(ctx, "console", "", time.Minute))
	require.Error(t, store.Save(ctx, "console", "token", 0))
	require.Error(t, store.Save(ctx, "console", "token", -time.Second))
}

func TestTokenStore_Expires(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "console-exp", "token", 100*time.Millisecond))
	require.Eventually(t, func() bool {
		_, err := store.Load(ctx, "console-exp")
		return err != nil
	}, 2*time.Second, 50*time.Millisecond)
}

func TestTokenStore_List(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a", "t1", time.Hour))
	require.NoError(t, store.Save(ctx, "b", "t2", time.Hour))
	t.Cleanup(func() {
		_ = store.Delete(ctx, "a")
		_ = store.Delete(ctx, "b")
	})

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, tok := range all {
		ids = append(ids, tok.ConsoleID)
		assert.Greater(t, tok.TTL, time.Duration(0))
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	one, err := store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
