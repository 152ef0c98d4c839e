// Package dimcache caches slowly-changing dimension lists (regions,
// available weeks) for one user session, so repeated fetches inside the TTL
// window cost nothing. The cache is best-effort throughout: a failed read
// or write degrades to an uncached fetch, never a failed request.
package dimcache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Well-known keys and their TTLs. Region lists drift as operations open and
// close; week/year sets only grow once a week.
const (
	KeyRegions = "regions"
	KeyWeeks   = "weeks"

	TTLRegions = 5 * time.Minute
	TTLWeeks   = time.Hour
)

// Entry is the stored shape: a timestamp and the cached payload.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store persists cache entries. Entries are written whole, so no
// cross-entry coordination is needed.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
}

// FetchFunc loads a fresh value when the cache cannot answer.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Cache is a TTL get-or-fetch cache over an injectable store.
type Cache struct {
	store Store
	now   func() time.Time
}

// New creates a cache over the given store.
func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// WithNow fixes the clock for testing.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// GetOrFetch returns the cached value for key when it is younger than ttl;
// otherwise it fetches fresh, stores the result, and returns it.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, error) {
	if entry, ok, err := c.store.Get(ctx, key); err != nil {
		zap.L().Warn("dimension cache read failed, fetching fresh",
			zap.String("key", key), zap.Error(err))
	} else if ok && c.now().Sub(entry.Timestamp) < ttl {
		zap.L().Debug("dimension cache hit", zap.String("key", key))
		return entry.Data, nil
	}

	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, Entry{Timestamp: c.now(), Data: data}); err != nil {
		zap.L().Warn("dimension cache write failed",
			zap.String("key", key), zap.Error(err))
	}
	return data, nil
}

// GetOrFetchAs is GetOrFetch with JSON (de)serialization to a typed value.
func GetOrFetchAs[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	data, err := c.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (json.RawMessage, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, err
	}
	return out, nil
}
