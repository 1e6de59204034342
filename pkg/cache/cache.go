package cache

import (
	"context"
	"time"
)

// Service defines the TTL lock operations the cache backends provide.
type Service interface {
	// TryLock sets key for ttl unless it is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}

var (
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
)
