// Package cache provides the two storage layers polypack relies on: a
// pluggable metadata Cache for registry HTTP responses (file, null, or redis
// backed) and the content-addressed artifact Store that makes fetch and
// install idempotent.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys with optional TTL.
// It backs registry metadata caching; artifact bytes never go through it.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
