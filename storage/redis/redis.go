// Package redis provides a Redis-based implementation of the storage.Storage
// interface with TTL support, allowing several server processes to share one
// cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/pipedrive-mcp-server-go/storage"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis storage.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "pipedrive-mcp:cache:"
	KeyPrefix string
}

// Storage implements the storage.Storage interface using Redis.
type Storage struct {
	client    *redis.Client
	keyPrefix string
}

// New creates a new Redis-based storage instance.
func New(config Config) (*Storage, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "pipedrive-mcp:cache:"
	}
	return &Storage{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

// NewFromURL parses a redis:// URL and returns storage over a new client.
func NewFromURL(url string) (*Storage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return New(Config{Client: redis.NewClient(opts)})
}

// Ping checks connectivity.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get retrieves data for a specific key within the given namespace.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	options := storage.Apply(opts...)
	redisKey := s.keyPrefix + storage.Key(options.Namespace, key)

	val, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, err)
	}

	item, err := storage.DecodeItem(val)
	if err != nil {
		return nil, err
	}
	if item.IsExpired() {
		s.client.Del(ctx, redisKey)
		return nil, nil
	}
	return item, nil
}

// Set stores data for a specific key within the given namespace.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := storage.Apply(opts...)
	redisKey := s.keyPrefix + storage.Key(options.Namespace, key)

	item := storage.NewItem(data, options.TTL)
	b, err := item.Encode()
	if err != nil {
		return err
	}

	var ttl time.Duration
	if item.ExpiresAt != nil {
		ttl = *options.TTL
	}
	if err := s.client.Set(ctx, redisKey, b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
	}
	return nil
}

// Delete removes data within the given namespace.
func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	options := storage.Apply(opts...)

	if options.Key != nil {
		redisKey := s.keyPrefix + storage.Key(options.Namespace, *options.Key)
		if err := s.client.Del(ctx, redisKey).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
		}
		return nil
	}

	pattern := s.keyPrefix + storage.NamespacePrefix(options.Namespace) + "*"
	keys, err := s.scanKeys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
	}
	return nil
}

// Close closes the storage backend and releases resources.
func (s *Storage) Close() error {
	return s.client.Close()
}

// scanKeys uses Redis SCAN to find all keys matching a pattern.
func (s *Storage) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

var _ storage.Storage = (*Storage)(nil)
