// Package cache provides the namespace-scoped key-value store backing the
// offline cache manager. A namespace holds every cached response for one
// deployment generation (e.g. "app-cache-v2"); activating a new generation
// drops all others wholesale. Implementations may keep entries in process
// memory (default) or in Redis for sharing across edge instances.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist in a namespace.
// A miss is not a failure; callers fall through to the network.
var ErrNotFound = errors.New("cache: key not found")

// Store abstracts a namespace-scoped key-value store.
// All operations are safe for concurrent use. Concurrent writes to the
// same key are last-write-wins, which is acceptable for idempotent GETs.
type Store interface {
	// Get retrieves the value stored under key in the given namespace.
	// Returns ErrNotFound if the namespace or key does not exist.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Set stores a value under key, creating the namespace if absent.
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Namespaces enumerates every namespace currently present.
	Namespaces(ctx context.Context) ([]string, error)

	// DropNamespace removes a namespace and all its entries.
	// Dropping an absent namespace is a no-op.
	DropNamespace(ctx context.Context, namespace string) error

	// Ping verifies connectivity to the underlying backend.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}
