package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.pilab.hu/iam/cache"
)

const machineTokenPrefix = "openapi:token:"

// MachineTokenStore implements cache.MachineTokenStore on a shared Redis so
// tokens issued by one server instance are visible to every other.
type MachineTokenStore struct {
	client *redis.Client
}

// NewMachineTokenStore creates a new [MachineTokenStore] instance.
func NewMachineTokenStore(client *redis.Client) *MachineTokenStore {
	return &MachineTokenStore{client: client}
}

func (s *MachineTokenStore) key(token string) string {
	return machineTokenPrefix + token
}

// Set stores the token metadata as a hash and applies the TTL. A
// non-positive ttl is rejected rather than handed to EXPIRE, which would
// delete the key or leave it unbounded depending on the server version.
func (s *MachineTokenStore) Set(ctx context.Context, token string, entry *cache.MachineTokenEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	key := s.key(token)

	fields := map[string]any{
		"app_id":     entry.AppID,
		"client_id":  entry.ClientID,
		"scope":      entry.Scope,
		"created_at": strconv.FormatInt(entry.CreatedAt.Unix(), 10),
	}
	if entry.CredentialID != "" {
		fields["credential_id"] = entry.CredentialID
	}

	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to set token in Redis: %w", err)
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set expiry for token in Redis: %w", err)
	}
	return nil
}

// Get retrieves the token metadata, or cache.ErrTokenNotFound when absent.
func (s *MachineTokenStore) Get(ctx context.Context, token string) (*cache.MachineTokenEntry, error) {
	res, err := s.client.HGetAll(ctx, s.key(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}
	if len(res) == 0 {
		return nil, cache.ErrTokenNotFound
	}

	entry := &cache.MachineTokenEntry{
		AppID:        res["app_id"],
		CredentialID: res["credential_id"],
		ClientID:     res["client_id"],
		Scope:        res["scope"],
	}
	if raw, ok := res["created_at"]; ok {
		if unix, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			entry.CreatedAt = time.Unix(unix, 0)
		}
	}
	return entry, nil
}

// Has reports whether the token exists in the store.
func (s *MachineTokenStore) Has(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token in Redis: %w", err)
	}
	return n > 0, nil
}

// Delete removes a token from the store.
func (s *MachineTokenStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete token from Redis: %w", err)
	}
	return nil
}

// Count returns the number of stored tokens. Uses SCAN, so it is an
// admin/diagnostics operation, not a hot-path one.
func (s *MachineTokenStore) Count(ctx context.Context) (int64, error) {
	var (
		count  int64
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, machineTokenPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan tokens in Redis: %w", err)
		}
		count += int64(len(keys))
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}
