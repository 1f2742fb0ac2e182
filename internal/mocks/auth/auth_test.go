package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/ports"
)

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	_, err := store.Load(ctx, "c1")
	require.ErrorIs(t, err, ports.ErrTokenNotFound)

	require.NoError(t, store.Save(ctx, "c1", "tok", time.Hour))
	tok, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	assert.Equal(t, time.Hour, store.TTL("c1"))

	require.NoError(t, store.Delete(ctx, "c1"))
	require.NoError(t, store.Delete(ctx, "c1"))
	_, err = store.Load(ctx, "c1")
	require.ErrorIs(t, err, ports.ErrTokenNotFound)

	require.Error(t, store.Save(ctx, "", "tok", time.Hour))
}

func TestMemoryActivitySink_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	sink := &MemoryActivitySink{}
	require.NoError(t, sink.Record(ctx, domainauth.ActivityEvent{ID: "1", Kind: domainauth.ActivityLogin, Email: "a"}))
	require.NoError(t, sink.Record(ctx, domainauth.ActivityEvent{ID: "2", Kind: domainauth.ActivityLogout, Email: "a"}))
	require.NoError(t, sink.Record(ctx, domainauth.ActivityEvent{ID: "3", Kind: domainauth.ActivityLogin, Email: "b"}))

	all, err := sink.List(ctx, domainauth.ActivityListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)

	logins, err := sink.List(ctx, domainauth.ActivityListOptions{Kind: domainauth.ActivityLogin, Limit: 1})
	require.NoError(t, err)
	require.Len(t, logins, 1)
	assert.Equal(t, "3", logins[0].ID)

	byEmail, err := sink.List(ctx, domainauth.ActivityListOptions{Email: "a"})
	require.NoError(t, err)
	assert.Len(t, byEmail, 2)
}

func TestManualClock_AfterFunc(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	var fired []string
	clock.AfterFunc(5*time.Second, func() { fired = append(fired, "five") })
	clock.AfterFunc(2*time.Second, func() { fired = append(fired, "two") })
	stopped := clock.AfterFunc(3*time.Second, func() { fired = append(fired, "three") })
	assert.Equal(t, 3, clock.Pending())

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(4 * time.Second)
	assert.Equal(t, []string{"two"}, fired)

	clock.Advance(time.Second)
	assert.Equal(t, []string{"two", "five"}, fired)
	assert.Equal(t, 0, clock.Pending())
	assert.Equal(t, start.Add(5*time.Second), clock.Now())
}

func TestFakeAuthBackend_CountsCalls(t *testing.T) {
	backend := &FakeAuthBackend{}
	ctx := context.Background()

	_, _ = backend.Login(ctx, "a", "b")
	_, _ = backend.Login(ctx, "a", "b")
	_ = backend.Revoke(ctx, "t")

	assert.Equal(t, 2, backend.Calls("Login"))
	assert.Equal(t, 1, backend.Calls("Revoke"))
	assert.Equal(t, 0, backend.Calls("Register"))
}
