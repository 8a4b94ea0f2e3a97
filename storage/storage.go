// Package storage defines the key/value cache used for slow-changing
// downstream reference data. Implementations live in the memory and redis
// subpackages.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Storage defines the primary interface for namespaced cache storage.
type Storage interface {
	// Get retrieves data for a specific key within the given namespace.
	// Returns a nil Item if the key doesn't exist or has expired.
	// Returns error only for legitimate storage system failures.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data for a specific key within the given namespace.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes data within the given namespace.
	// If no key is specified via WithKey, the entire namespace is removed.
	Delete(ctx context.Context, opts ...Option) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// Item represents a stored piece of data with metadata.
type Item struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewItem stamps data with the current time and an optional TTL.
func NewItem(data []byte, ttl *time.Duration) *Item {
	now := time.Now()
	it := &Item{Data: data, CreatedAt: now}
	if ttl != nil && *ttl > 0 {
		exp := now.Add(*ttl)
		it.ExpiresAt = &exp
	}
	return it
}

// IsExpired checks if the item has expired.
func (it *Item) IsExpired() bool {
	return it.ExpiresAt != nil && time.Now().After(*it.ExpiresAt)
}

// Encode serializes the item for backends that store opaque bytes.
func (it *Item) Encode() ([]byte, error) {
	b, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal storage item: %w", err)
	}
	return b, nil
}

// DecodeItem is the inverse of Item.Encode.
func DecodeItem(b []byte) (*Item, error) {
	var it Item
	if err := json.Unmarshal(b, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}
	return &it, nil
}

// Option configures storage operations.
type Option func(*Options)

// Options contains configuration for storage operations.
type Options struct {
	Namespace string         // Optional: storage namespace ("" = global)
	Key       *string        // Optional: specific key (for Delete operations)
	TTL       *time.Duration // Optional: time-to-live for the data
}

// Apply folds opts into an Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNamespace scopes an operation to a namespace.
func WithNamespace(ns string) Option {
	return func(opts *Options) { opts.Namespace = ns }
}

// WithKey specifies a specific key for Delete operations.
// If not provided, Delete removes the entire namespace.
func WithKey(key string) Option {
	return func(opts *Options) { opts.Key = &key }
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) { opts.TTL = &ttl }
}

// ErrInvalidOptions is returned when incompatible options are provided.
var ErrInvalidOptions = errors.New("storage: invalid option combination")

// Key joins a namespace and key into the flat form used by backends.
func Key(namespace, key string) string {
	if namespace == "" {
		return "global:" + key
	}
	return "ns:" + namespace + ":" + key
}

// NamespacePrefix is the flat prefix shared by every key of a namespace.
func NamespacePrefix(namespace string) string {
	if namespace == "" {
		return "global:"
	}
	return "ns:" + namespace + ":"
}
