package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.pilab.hu/iam/cache"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMachineTokenStoreRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewMachineTokenStore(client)
	ctx := context.Background()

	created := time.Unix(time.Now().Unix(), 0)
	entry := &cache.MachineTokenEntry{
		AppID:        "app-1",
		CredentialID: "cred-1",
		ClientID:     "client-1",
		Scope:        "orders:read billing:read",
		CreatedAt:    created,
	}
	require.NoError(t, store.Set(ctx, "tok", entry, time.Minute))

	// Keys carry the shared prefix so other services can address them.
	assert.True(t, mr.Exists("openapi:token:tok"))

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
	assert.ErrorIs(t, err, cache.ErrTokenNotFound)
}

func TestMachineTokenStoreOmitsEmptyCredentialID(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewMachineTokenStore(client)
	ctx := context.Background()

	entry := &cache.MachineTokenEntry{
		AppID:     "app-1",
		ClientID:  "client-1",
		CreatedAt: time.Unix(time.Now().Unix(), 0),
	}
	require.NoError(t, store.Set(ctx, "tok", entry, time.Minute))

	exists, err := client.HExists(ctx, "openapi:token:tok", "credential_id").Result()
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Empty(t, got.CredentialID)
}

func TestMachineTokenStoreRejectsNonPositiveTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewMachineTokenStore(client)
	ctx := context.Background()

	entry := &cache.MachineTokenEntry{AppID: "app-1"}
	require.Error(t, store.Set(ctx, "tok", entry, 0))
	require.Error(t, store.Set(ctx, "tok", entry, -time.Second))

	assert.False(t, mr.Exists("openapi:token:tok"))
}

func TestMachineTokenStoreExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewMachineTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "tok", &cache.MachineTokenEntry{AppID: "app-1"}, time.Second))

	mr.FastForward(2 * time.Second)

	ok, err := store.Has(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, cache.ErrTokenNotFound)
}

func TestMachineTokenStoreCountScansAllPages(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewMachineTokenStore(client)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		token := fmt.Sprintf("tok-%03d", i)
		require.NoError(t, store.Set(ctx, token, &cache.MachineTokenEntry{AppID: "app-1"}, time.Minute))
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250), count)
}
