package authkitredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore keeps revoked tokens in Redis with native key expiry, so every
// service instance sees the same blacklist.
type RevocationStore struct {
	client redis.UniversalClient
}

// NewRevocationStore wraps an existing Redis client.
func NewRevocationStore(client redis.UniversalClient) *RevocationStore {
	return &RevocationStore{client: client}
}

// Open parses a redis:// URL, connects and pings the server.
func Open(ctx context.Context, redisURL string) (*RevocationStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("revocation_store.redis.parse_url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("revocation_store.redis.ping: %w", err)
	}
	return NewRevocationStore(client), nil
}

// Set stores value under key with the given TTL.
func (store *RevocationStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := store.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("revocation_store.redis.set: %w", err)
	}
	return nil
}

// Exists reports whether key is present.
func (store *RevocationStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := store.client.Exists(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("revocation_store.redis.exists: %w", err)
	}
	return count > 0, nil
}

// Delete removes key.
func (store *RevocationStore) Delete(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("revocation_store.redis.del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (store *RevocationStore) Close() error {
	return store.client.Close()
}
