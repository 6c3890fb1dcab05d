package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces nonce keys in a shared redis database.
const RedisKeyPrefix = "x402:nonce:"

// redisCmdable is the subset of the redis client the store needs.
type redisCmdable interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisStore keeps nonces in redis with a retention TTL, shared by every
// facilitator instance pointed at the same database.
type RedisStore struct {
	client    redisCmdable
	closer    func() error
	retention time.Duration
}

var _ NonceStore = (*RedisStore)(nil)

// DialRedisStore connects to the redis database at url and pings it.
func DialRedisStore(ctx context.Context, url string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store := NewRedisStore(client, retention)
	store.closer = client.Close
	return store, nil
}

// NewRedisStore wraps an existing client. A zero retention uses DefaultRetention.
func NewRedisStore(client redisCmdable, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{client: client, retention: retention}
}

// IsSpent reports whether the nonce key exists.
func (s *RedisStore) IsSpent(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, ErrEmptyNonce
	}

	n, err := s.client.Exists(ctx, RedisKeyPrefix+nonce).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read nonce: %w", err)
	}
	return n > 0, nil
}

// MarkSpent sets the nonce key if it is absent.
func (s *RedisStore) MarkSpent(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrEmptyNonce
	}

	if err := s.client.SetNX(ctx, RedisKeyPrefix+nonce, "1", s.retention).Err(); err != nil {
		return fmt.Errorf("failed to mark nonce spent: %w", err)
	}
	return nil
}

// Close closes the connection if the store opened it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
