package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on top of Redis. Keys are namespaced with a
// prefix so several deployments can share one Redis database.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and verifies the connection
func NewRedisStore(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Load decodes the value stored under key into dst
func (s *RedisStore) Load(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("%w: key %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// Save writes all entries inside MULTI/EXEC
func (s *RedisStore) Save(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", e.Key, err)
		}
		payloads[i] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, e := range entries {
			pipe.Set(ctx, s.key(e.Key), payloads[i], 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: redis save: %w", err)
	}
	return nil
}

// PutRaw stores data under key verbatim
func (s *RedisStore) PutRaw(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", key, err)
	}
	return nil
}

// Keys returns every key under the prefix, sorted, with the prefix removed
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: redis scan: %w", err)
	}

	slices.Sort(keys)
	return keys, nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
