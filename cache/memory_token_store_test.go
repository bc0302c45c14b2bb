package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenStoreRoundTrip(t *testing.T) {
	store := NewMemoryTokenStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	entry := &MachineTokenEntry{
		AppID:        "app-1",
		CredentialID: "cred-1",
		ClientID:     "client-1",
		Scope:        "orders:read",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Set(ctx, "tok", entry, time.Minute))

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	ok, err := store.Has(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.Delete(ctx, "tok"))
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryTokenStoreExpiry(t *testing.T) {
	store := NewMemoryTokenStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "tok", &MachineTokenEntry{AppID: "app-1"}, 30*time.Millisecond))

	ok, err := store.Has(ctx, "tok")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	ok, err = store.Has(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTokenStoreRejectsNonPositiveTTL(t *testing.T) {
	store := NewMemoryTokenStore()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	// ttlcache would keep a zero-TTL entry forever, so Set must refuse it.
	entry := &MachineTokenEntry{AppID: "app-1"}
	require.Error(t, store.Set(ctx, "tok", entry, 0))
	require.Error(t, store.Set(ctx, "tok", entry, -time.Second))

	ok, err := store.Has(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBlacklistLifecycle(t *testing.T) {
	blacklist := NewMemoryBlacklist()
	t.Cleanup(func() { _ = blacklist.Close() })
	ctx := context.Background()

	revoked, err := blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, blacklist.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	size, err := blacklist.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	require.NoError(t, blacklist.Unrevoke(ctx, "jti-1"))
	revoked, err = blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryBlacklistEntriesExpire(t *testing.T) {
	blacklist := NewMemoryBlacklist()
	t.Cleanup(func() { _ = blacklist.Close() })
	ctx := context.Background()

	require.NoError(t, blacklist.Revoke(ctx, "jti-1", 30*time.Millisecond))
	time.Sleep(60 * time.Millisecond)

	revoked, err := blacklist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
