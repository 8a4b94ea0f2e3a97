// Package memory provides an in-process implementation of storage.Storage
// backed by github.com/allegro/bigcache/v3. Per-item TTLs are enforced on
// read; bigcache's life window bounds how long any entry can survive.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ggoodman/pipedrive-mcp-server-go/storage"
)

// Config contains configuration options for the in-memory storage.
type Config struct {
	// LifeWindow is the longest any entry is kept. Default: 1h.
	LifeWindow time.Duration
	// CleanWindow is the interval between evictions of expired entries. Default: 1m.
	CleanWindow time.Duration
	// HardMaxCacheSizeMB caps memory use. Zero means unbounded.
	HardMaxCacheSizeMB int
}

// Storage implements the storage.Storage interface using bigcache.
type Storage struct {
	cache *bigcache.BigCache
}

// New creates a new in-memory storage implementation.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = time.Hour
	}
	if cfg.CleanWindow <= 0 {
		cfg.CleanWindow = time.Minute
	}

	bc := bigcache.DefaultConfig(cfg.LifeWindow)
	bc.CleanWindow = cfg.CleanWindow
	bc.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	bc.Shards = 64
	bc.Verbose = false

	cache, err := bigcache.New(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}
	return &Storage{cache: cache}, nil
}

// Get retrieves data for a specific key within the given namespace.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	options := storage.Apply(opts...)
	k := storage.Key(options.Namespace, key)

	raw, err := s.cache.Get(k)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", k, err)
	}

	item, err := storage.DecodeItem(raw)
	if err != nil {
		return nil, err
	}
	if item.IsExpired() {
		_ = s.cache.Delete(k)
		return nil, nil
	}
	return item, nil
}

// Set stores data for a specific key within the given namespace.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := storage.Apply(opts...)
	k := storage.Key(options.Namespace, key)

	b, err := storage.NewItem(data, options.TTL).Encode()
	if err != nil {
		return err
	}
	if err := s.cache.Set(k, b); err != nil {
		return fmt.Errorf("failed to set key %s: %w", k, err)
	}
	return nil
}

// Delete removes one key, or every key of the namespace when no key is given.
func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	options := storage.Apply(opts...)

	if options.Key != nil {
		k := storage.Key(options.Namespace, *options.Key)
		if err := s.cache.Delete(k); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return fmt.Errorf("failed to delete key %s: %w", k, err)
		}
		return nil
	}

	prefix := storage.NamespacePrefix(options.Namespace)
	var keys []string
	it := s.cache.Iterator()
	for it.SetNext() {
		entry, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(entry.Key(), prefix) {
			keys = append(keys, entry.Key())
		}
	}
	for _, k := range keys {
		if err := s.cache.Delete(k); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return fmt.Errorf("failed to delete key %s: %w", k, err)
		}
	}
	return nil
}

// Len reports the number of entries, expired ones included.
func (s *Storage) Len() int { return s.cache.Len() }

// Close closes the storage backend and releases resources.
func (s *Storage) Close() error {
	return s.cache.Close()
}

var _ storage.Storage = (*Storage)(nil)
