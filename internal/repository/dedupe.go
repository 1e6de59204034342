package repository

import (
	"context"
	"time"

	"SignalDNA/internal/domain/models"
	drepo "SignalDNA/internal/domain/repository"
	"SignalDNA/pkg/cache"
)

// CacheDeduper suppresses events already seen within ttl using cache locks.
type CacheDeduper struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheDeduper(c cache.Service, ttl time.Duration) *CacheDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CacheDeduper{cache: c, ttl: ttl}
}

// Seen takes the event's lock; a lock already held means a duplicate.
// Events without a provider id are never duplicates.
func (d *CacheDeduper) Seen(ctx context.Context, ev models.CanonicalEvent) (bool, error) {
	if ev.ID == "" {
		return false, nil
	}
	acquired, err := d.cache.TryLock(ctx, DedupeKey(ev), d.ttl)
	if err != nil {
		return false, err
	}
	return !acquired, nil
}

// DedupeKey is news:<provider article id>.
func DedupeKey(ev models.CanonicalEvent) string {
	return cache.GenerateKey("news", ev.ID)
}

var _ drepo.Deduper = (*CacheDeduper)(nil)
