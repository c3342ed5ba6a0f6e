package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store backed by Redis, so cached responses are
// shared across every edge instance fronting the same origin. Entry keys
// are namespaced as "<prefix><namespace>:<key>"; the set of live
// namespaces is tracked in a Redis set so enumeration is exact rather
// than inferred from key scans.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig holds configuration for the Redis store.
type RedisStoreConfig struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string // Redis password
	DB        int    // Redis database number
	KeyPrefix string // Key prefix (default: "pulsar:cache:")
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "pulsar:cache:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// NewRedisStoreFromClient creates a Redis store using an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "pulsar:cache:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) entryKey(namespace, key string) string {
	return s.prefix + namespace + ":" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "namespaces"
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.entryKey(namespace, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(namespace, key), value, 0)
	pipe.SAdd(ctx, s.indexKey(), namespace)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	return s.client.Del(ctx, s.entryKey(namespace, key)).Err()
}

func (s *RedisStore) Namespaces(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *RedisStore) DropNamespace(ctx context.Context, namespace string) error {
	pattern := s.entryKey(namespace, "*")
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return fmt.Errorf("scan namespace %q: %w", namespace, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return s.client.SRem(ctx, s.indexKey(), namespace).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
